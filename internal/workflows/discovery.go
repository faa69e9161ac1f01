package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// DiscoveryInput is the input for the area discovery workflow.
type DiscoveryInput struct {
	JobID   string
	Request domain.DiscoveryRequest
}

// parcelBatchSize is how many grid points each lookup activity scans. Small
// enough that progress events land frequently, large enough to amortize the
// activity scheduling overhead.
const parcelBatchSize = 25

// DiscoveryWorkflow orchestrates a bulk "discover this area" job: resolve
// the area to bounds, walk a scan grid across it, look up and score parcels
// in batches, and persist the survivors as deals. Progress is published
// after every batch; a terminal complete or error event always closes the
// job, so the consumer's stream never ends silently on the happy path.
func DiscoveryWorkflow(ctx workflow.Context, input DiscoveryInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting discovery workflow", "jobID", input.JobID, "area", input.Request.Value)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	fail := func(msg string) {
		// Best effort: the idle watchdog downstream covers a lost event.
		_ = workflow.ExecuteActivity(ctx, "PublishProgress", progressEvent(input.JobID, domain.DiscoveryEventError, msg, 100, 0, 0, msg)).Get(ctx, nil)
	}

	// Step 1: resolve the requested area to geographic bounds.
	var bounds domain.Bounds
	if err := workflow.ExecuteActivity(ctx, "ResolveAreaBounds", input.Request).Get(ctx, &bounds); err != nil {
		fail("Could not resolve the requested area")
		return err
	}

	// Step 2: build the scan grid.
	var grid []domain.GeoPoint
	if err := workflow.ExecuteActivity(ctx, "BuildScanGrid", bounds, input.Request.MaxResults).Get(ctx, &grid); err != nil {
		fail("Could not plan the area scan")
		return err
	}

	if err := workflow.ExecuteActivity(ctx, "PublishProgress",
		progressEvent(input.JobID, domain.DiscoveryEventProgress, "Scanning parcels", 0, 0, 0, "")).Get(ctx, nil); err != nil {
		logger.Warn("initial progress publish failed", "error", err)
	}

	// Step 3: scan in batches, scoring and persisting as we go.
	scanned := 0
	leadsFound := 0
	for start := 0; start < len(grid) && leadsFound < input.Request.MaxResults; start += parcelBatchSize {
		end := start + parcelBatchSize
		if end > len(grid) {
			end = len(grid)
		}

		var batch []domain.Deal
		if err := workflow.ExecuteActivity(ctx, "ScanAndScoreBatch", input.JobID, input.Request, grid[start:end]).Get(ctx, &batch); err != nil {
			fail("Parcel scan failed partway through")
			return err
		}
		scanned += end - start

		remaining := input.Request.MaxResults - leadsFound
		if len(batch) > remaining {
			batch = batch[:remaining]
		}
		if len(batch) > 0 {
			if err := workflow.ExecuteActivity(ctx, "PersistLeads", batch).Get(ctx, nil); err != nil {
				fail("Could not save discovered leads")
				return err
			}
			leadsFound += len(batch)
		}

		percent := float64(scanned) / float64(len(grid)) * 100
		if err := workflow.ExecuteActivity(ctx, "PublishProgress",
			progressEvent(input.JobID, domain.DiscoveryEventProgress, "Scanning parcels", percent, scanned, leadsFound, "")).Get(ctx, nil); err != nil {
			logger.Warn("progress publish failed", "error", err)
		}
	}

	logger.Info("Discovery complete", "jobID", input.JobID, "scanned", scanned, "leads", leadsFound)
	return workflow.ExecuteActivity(ctx, "PublishProgress",
		progressEvent(input.JobID, domain.DiscoveryEventComplete, "Discovery complete", 100, scanned, leadsFound, "")).Get(ctx, nil)
}

func progressEvent(jobID, kind, message string, percent float64, scanned, leads int, errMsg string) *domain.DiscoveryEvent {
	return &domain.DiscoveryEvent{
		JobID:          jobID,
		Kind:           kind,
		Message:        message,
		Percent:        percent,
		ParcelsScanned: scanned,
		LeadsFound:     leads,
		Error:          errMsg,
	}
}
