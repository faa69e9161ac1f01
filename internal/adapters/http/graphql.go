package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	dealType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Deal",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"status":           &graphql.Field{Type: graphql.String},
			"address":          &graphql.Field{Type: graphql.String},
			"location":         &graphql.Field{Type: geoPointType},
			"score":            &graphql.Field{Type: graphql.Float},
			"business":         &graphql.Field{Type: graphql.String},
			"contact_name":     &graphql.Field{Type: graphql.String},
			"contact_email":    &graphql.Field{Type: graphql.String},
			"paved_area_sqft":  &graphql.Field{Type: graphql.Float},
			"regrid_owner":     &graphql.Field{Type: graphql.String},
			"discovery_source": &graphql.Field{Type: graphql.String},
		},
	})

	parcelType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Parcel",
		Fields: graphql.Fields{
			"address":    &graphql.Field{Type: graphql.String},
			"owner":      &graphql.Field{Type: graphql.String},
			"area_acres": &graphql.Field{Type: graphql.Float},
			"land_use":   &graphql.Field{Type: graphql.String},
			"source":     &graphql.Field{Type: graphql.String},
		},
	})

	countsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DealCounts",
		Fields: graphql.Fields{
			"all": &graphql.Field{Type: graphql.Int},
			"pending": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(*domain.DealCounts); ok {
						return c.ByStatus[domain.StatusPending], nil
					}
					return 0, nil
				},
			},
			"evaluated": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if c, ok := p.Source.(*domain.DealCounts); ok {
						return c.ByStatus[domain.StatusEvaluated], nil
					}
					return 0, nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"deals": &graphql.Field{
				Type:        graphql.NewList(dealType),
				Description: "List deals filtered by status and score bracket",
				Args: graphql.FieldConfigArgument{
					"status":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"bracket": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: "all"},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					status := p.Args["status"].(string)
					bracket := domain.ScoreBracket(p.Args["bracket"].(string))
					return deps.Deals.List(p.Context, status, bracket)
				},
			},
			"deal": &graphql.Field{
				Type:        dealType,
				Description: "Get a deal by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Deals.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"dealsInViewport": &graphql.Field{
				Type:        graphql.NewList(dealType),
				Description: "Deals inside a map viewport",
				Args: graphql.FieldConfigArgument{
					"min_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"min_lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"max_lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"status":  &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					bounds := domain.Bounds{
						MinLat: p.Args["min_lat"].(float64),
						MaxLat: p.Args["max_lat"].(float64),
						MinLng: p.Args["min_lng"].(float64),
						MaxLng: p.Args["max_lng"].(float64),
					}
					return deps.Deals.ListForMap(p.Context, p.Args["status"].(string), bounds)
				},
			},
			"dealCounts": &graphql.Field{
				Type:        countsType,
				Description: "Per-status chip totals from the unfiltered collection",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Deals.Counts(p.Context)
				},
			},
			"parcel": &graphql.Field{
				Type:        parcelType,
				Description: "Parcel at a point (billable provider lookup)",
				Args: graphql.FieldConfigArgument{
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lng": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					overlay, err := deps.Capture.Open(domain.GeoPoint{
						Lat: p.Args["lat"].(float64),
						Lng: p.Args["lng"].(float64),
					})
					if err != nil {
						return nil, err
					}
					defer overlay.Close()
					snap, err := overlay.Analyze(p.Context)
					if err != nil {
						return nil, err
					}
					return snap.Parcel, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
