package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifelog/internal/query"
)

// QueryRequest is the request body for POST /api/query.
type QueryRequest struct {
	TargetEntity   string         `json:"target_entity" example:"event"`
	Filters        map[string]any `json:"filters"`
	Hydrate        []string       `json:"hydrate" example:"participants"`
	Limit          int            `json:"limit" example:"50"`
	Offset         int            `json:"offset" example:"0"`
	OrderBy        []string       `json:"order_by" example:"-start_time"`
	IncludeDeleted bool           `json:"include_deleted"`
	Consistent     bool           `json:"consistent"`
}

// Validate checks the request envelope. Field-level filter checks happen in
// the query engine.
func (r QueryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Min(0)),
		validation.Field(&r.Offset, validation.Min(0)),
		validation.Field(&r.Hydrate, validation.Each(validation.Required)),
		validation.Field(&r.OrderBy, validation.Each(validation.Required)),
	)
}

func (r QueryRequest) engineRequest() query.QueryRequest {
	return query.QueryRequest{
		TargetEntity:   r.TargetEntity,
		Filters:        r.Filters,
		Hydrate:        r.Hydrate,
		Limit:          r.Limit,
		Offset:         r.Offset,
		OrderBy:        r.OrderBy,
		IncludeDeleted: r.IncludeDeleted,
		Consistent:     r.Consistent,
	}
}

// AggregateRequest is the request body for POST /api/aggregate.
type AggregateRequest struct {
	TargetEntity   string         `json:"target_entity" example:"event"`
	Filters        map[string]any `json:"filters"`
	GroupBy        []string       `json:"group_by" example:"category"`
	Metrics        []string       `json:"metrics" example:"count" validate:"required"`
	OrderBy        []string       `json:"order_by"`
	IncludeDeleted bool           `json:"include_deleted"`
}

// Validate checks the request envelope.
func (r AggregateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Metrics, validation.Required, validation.Each(validation.Required)),
		validation.Field(&r.GroupBy, validation.Each(validation.Required)),
		validation.Field(&r.OrderBy, validation.Each(validation.Required)),
	)
}

func (r AggregateRequest) engineRequest() query.AggregateRequest {
	return query.AggregateRequest{
		TargetEntity:   r.TargetEntity,
		Filters:        r.Filters,
		GroupBy:        r.GroupBy,
		Metrics:        r.Metrics,
		OrderBy:        r.OrderBy,
		IncludeDeleted: r.IncludeDeleted,
	}
}
