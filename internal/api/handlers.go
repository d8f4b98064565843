package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/query"
	"github.com/starford/lifelog/internal/schema"
)

// Engine is the query surface the handlers call into.
type Engine interface {
	Query(ctx context.Context, req query.QueryRequest) (*query.Result, error)
	Aggregate(ctx context.Context, req query.AggregateRequest) (*query.AggregateResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	engine Engine
	schema []schema.EntityInfo
}

// NewHandler creates a new Handler.
func NewHandler(engine Engine, entities []schema.EntityInfo) *Handler {
	return &Handler{engine: engine, schema: entities}
}

// Query handles POST /api/query.
//
//	@Summary		Find entities matching structured filters
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Query"
//	@Success		200		{object}	query.Result
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.engine.Query(r.Context(), req.engineRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Aggregate handles POST /api/aggregate.
//
//	@Summary		Compute grouped metrics over filtered entities
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AggregateRequest	true	"Aggregate"
//	@Success		200		{object}	query.AggregateResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/aggregate [post]
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	var req AggregateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.engine.Aggregate(r.Context(), req.engineRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Schema handles GET /api/schema.
//
//	@Summary		Describe queryable entities
//	@Tags			query
//	@Produce		json
//	@Success		200	{array}	schema.EntityInfo
//	@Security		BearerAuth
//	@Router			/schema [get]
func (h *Handler) Schema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.schema)
}

// decodeBody reads and validates a JSON body, writing the 400 itself on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		var errs validation.Errors
		if errors.As(err, &errs) {
			fields := make([]string, 0, len(errs))
			for f := range errs {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			writeJSON(w, http.StatusBadRequest, fieldError(fields[0], errs[fields[0]].Error()))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, fieldError(ve.Field, ve.Error()))
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody(nf.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("query timed out"))
	default:
		slog.ErrorContext(r.Context(), "query failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
