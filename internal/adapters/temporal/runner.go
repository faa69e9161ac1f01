package temporaladapter

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/avelarde/leadmap/internal/core/domain"
	"github.com/avelarde/leadmap/internal/workflows"
)

// Runner implements ports.DiscoveryRunner by launching the discovery
// workflow on Temporal. Streaming jobs are fire-and-forget; progress flows
// back over NATS from the workflow's activities.
type Runner struct {
	client    client.Client
	taskQueue string
}

// NewRunner creates a Runner over an existing Temporal client.
func NewRunner(c client.Client, taskQueue string) *Runner {
	return &Runner{client: c, taskQueue: taskQueue}
}

// Start launches the workflow and returns once it is accepted.
func (r *Runner) Start(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	_, err := r.execute(ctx, jobID, req)
	return err
}

// RunSync launches the workflow and blocks until it finishes.
func (r *Runner) RunSync(ctx context.Context, jobID string, req domain.DiscoveryRequest) error {
	run, err := r.execute(ctx, jobID, req)
	if err != nil {
		return err
	}
	if err := run.Get(ctx, nil); err != nil {
		return fmt.Errorf("discovery workflow %s: %w", jobID, err)
	}
	return nil
}

func (r *Runner) execute(ctx context.Context, jobID string, req domain.DiscoveryRequest) (client.WorkflowRun, error) {
	opts := client.StartWorkflowOptions{
		ID:        "discovery-" + jobID,
		TaskQueue: r.taskQueue,
	}
	run, err := r.client.ExecuteWorkflow(ctx, opts, workflows.DiscoveryWorkflow, workflows.DiscoveryInput{
		JobID:   jobID,
		Request: req,
	})
	if err != nil {
		return nil, fmt.Errorf("start discovery workflow: %w", err)
	}
	return run, nil
}
