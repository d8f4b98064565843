package query

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/lifelog/internal/apperr"
	"github.com/starford/lifelog/internal/schema"
	"github.com/starford/lifelog/internal/store"
)

// Row limits applied when the engine is built without WithLimits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLimits sets the default and maximum row limit.
func WithLimits(def, max int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defaultLimit = def
		}
		if max > 0 {
			e.maxLimit = max
		}
	}
}

// WithTimeout bounds every request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithHydrationParallelism sets how many relationship lookups may run at
// once on the pool. Values <= 1 run everything on one scoped connection.
func WithHydrationParallelism(n int) Option {
	return func(e *Engine) { e.parallelism = n }
}

// WithConsistentSnapshot runs every row query and its hydration inside one
// read-only transaction.
func WithConsistentSnapshot(on bool) Option {
	return func(e *Engine) { e.consistent = on }
}

// WithClock sets the clock used to resolve date shorthand.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine answers structured row and aggregate queries. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	db       *sql.DB
	dialect  store.Dialect
	model    *schema.Model
	compiler *Compiler
	norm     *Normalizer
	logger   *slog.Logger

	defaultLimit int
	maxLimit     int
	timeout      time.Duration
	parallelism  int
	consistent   bool
	now          func() time.Time
}

// New returns an Engine over pool.
func New(pool *sql.DB, dialect store.Dialect, model *schema.Model, opts ...Option) *Engine {
	e := &Engine{
		db:           pool,
		dialect:      dialect,
		model:        model,
		compiler:     NewCompiler(dialect),
		logger:       slog.Default(),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		parallelism:  1,
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.defaultLimit > e.maxLimit {
		e.defaultLimit = e.maxLimit
	}
	e.norm = NewNormalizer(e.now)
	return e
}

// Model returns the schema the engine validates against.
func (e *Engine) Model() *schema.Model { return e.model }

// QueryRequest is a structured row query.
type QueryRequest struct {
	TargetEntity   string         `json:"target_entity"`
	Filters        map[string]any `json:"filters"`
	Hydrate        []string       `json:"hydrate"`
	Limit          int            `json:"limit"`
	Offset         int            `json:"offset"`
	OrderBy        []string       `json:"order_by"`
	IncludeDeleted bool           `json:"include_deleted"`
	// Consistent requests a read-only snapshot for this call even when the
	// engine default is off.
	Consistent bool `json:"consistent"`
}

// AggregateRequest is a structured aggregate query.
type AggregateRequest struct {
	TargetEntity   string         `json:"target_entity"`
	Filters        map[string]any `json:"filters"`
	GroupBy        []string       `json:"group_by"`
	Metrics        []string       `json:"metrics"`
	OrderBy        []string       `json:"order_by"`
	IncludeDeleted bool           `json:"include_deleted"`
}

// Stats describes the work done for one request.
type Stats struct {
	Queries int `json:"queries"`
}

// Result is the answer to a row query.
type Result struct {
	Entity string `json:"entity"`
	Rows   []Row  `json:"rows"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
	Stats  Stats  `json:"stats"`
}

// AggregateResult is the answer to an aggregate query.
type AggregateResult struct {
	Entity string         `json:"entity"`
	Rows   []AggregateRow `json:"rows"`
	Stats  Stats          `json:"stats"`
}

// Query validates req, runs the row plan and hydrates the requested
// relationships. Nothing is sent to the database until the whole request
// has validated.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (res *Result, err error) {
	started := time.Now()
	var counter countingQuerier
	entityName := targetName(req.TargetEntity)
	ctx, span := startRequestSpan(ctx, "Query", entityName)
	defer func() {
		stats := Stats{Queries: counter.count()}
		rows := 0
		if res != nil {
			rows = len(res.Rows)
		}
		recordRequest("query", entityName, started, stats, rows, err)
		endRequestSpan(span, stats, rows, err)
		e.logResult("query", entityName, started, stats, rows, err)
	}()

	entity, plan, rels, err := e.prepareQuery(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	h := &hydrator{dialect: e.dialect, includeDeleted: req.IncludeDeleted}
	run := func(ctx context.Context, q querier, parallel int) ([]Row, error) {
		counter.q = q
		rows, err := scanRows(ctx, &counter, plan)
		if err != nil {
			return nil, err
		}
		if len(rels) > 0 && entity.Name == schema.EntityEvent {
			events := make([]*EventView, len(rows))
			for i, r := range rows {
				events[i] = r.(*EventView)
			}
			if err := h.hydrateEvents(ctx, &counter, events, rels, parallel); err != nil {
				return nil, err
			}
		}
		return rows, nil
	}

	var rows []Row
	switch {
	case req.Consistent || e.consistent:
		rows, err = e.inSnapshot(ctx, func(tx *sql.Tx) ([]Row, error) { return run(ctx, tx, 1) })
	case e.parallelism <= 1:
		rows, err = e.onConn(ctx, func(conn *sql.Conn) ([]Row, error) { return run(ctx, conn, 1) })
	default:
		rows, err = run(ctx, e.db, e.parallelism)
	}
	if err != nil {
		return nil, e.execErr(ctx, "query", err)
	}

	return &Result{
		Entity: entity.Name,
		Rows:   rows,
		Limit:  plan.Limit,
		Offset: plan.Offset,
		Stats:  Stats{Queries: counter.count()},
	}, nil
}

// Aggregate validates req and computes grouped metrics in one statement on
// its own scoped connection.
func (e *Engine) Aggregate(ctx context.Context, req AggregateRequest) (res *AggregateResult, err error) {
	started := time.Now()
	var counter countingQuerier
	entityName := targetName(req.TargetEntity)
	ctx, span := startRequestSpan(ctx, "Aggregate", entityName)
	defer func() {
		stats := Stats{Queries: counter.count()}
		rows := 0
		if res != nil {
			rows = len(res.Rows)
		}
		recordRequest("aggregate", entityName, started, stats, rows, err)
		endRequestSpan(span, stats, rows, err)
		e.logResult("aggregate", entityName, started, stats, rows, err)
	}()

	entity, plan, err := e.prepareAggregate(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, e.execErr(ctx, "aggregate", err)
	}
	defer conn.Close()

	counter.q = conn
	rows, err := runAggregate(ctx, &counter, plan)
	if err != nil {
		return nil, e.execErr(ctx, "aggregate", err)
	}
	return &AggregateResult{Entity: entity.Name, Rows: rows, Stats: Stats{Queries: counter.count()}}, nil
}

// ExplainQuery validates req and returns the row plan without executing it.
func (e *Engine) ExplainQuery(req QueryRequest) (*Plan, error) {
	_, plan, _, err := e.prepareQuery(req)
	return plan, err
}

// ExplainAggregate validates req and returns the aggregate plan without
// executing it.
func (e *Engine) ExplainAggregate(req AggregateRequest) (*Plan, error) {
	_, plan, err := e.prepareAggregate(req)
	return plan, err
}

func (e *Engine) prepareQuery(req QueryRequest) (*schema.Entity, *Plan, []string, error) {
	entity, err := e.entity(req.TargetEntity)
	if err != nil {
		return nil, nil, nil, err
	}
	tree, err := e.norm.Normalize(entity, req.Filters)
	if err != nil {
		return nil, nil, nil, err
	}
	rels, err := e.relations(entity, req.Hydrate)
	if err != nil {
		return nil, nil, nil, err
	}
	order, err := ParseOrder(entity, req.OrderBy)
	if err != nil {
		return nil, nil, nil, err
	}

	limit := req.Limit
	switch {
	case limit < 0:
		return nil, nil, nil, apperr.Invalid("limit", "must not be negative")
	case limit == 0:
		limit = e.defaultLimit
	case limit > e.maxLimit:
		return nil, nil, nil, apperr.Invalid("limit", "must be at most %d", e.maxLimit)
	}

	plan, err := e.compiler.CompileRows(entity, tree, RowSpec{
		Limit:          limit,
		Offset:         req.Offset,
		OrderBy:        order,
		IncludeDeleted: req.IncludeDeleted,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return entity, plan, rels, nil
}

func (e *Engine) prepareAggregate(req AggregateRequest) (*schema.Entity, *Plan, error) {
	entity, err := e.entity(req.TargetEntity)
	if err != nil {
		return nil, nil, err
	}
	tree, err := e.norm.Normalize(entity, req.Filters)
	if err != nil {
		return nil, nil, err
	}
	groups, err := ParseGroupBy(entity, req.GroupBy)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := ParseMetrics(entity, req.Metrics)
	if err != nil {
		return nil, nil, err
	}
	plan, err := e.compiler.CompileAggregate(entity, tree, AggregateSpec{
		GroupBy:        groups,
		Metrics:        metrics,
		OrderBy:        req.OrderBy,
		IncludeDeleted: req.IncludeDeleted,
	})
	if err != nil {
		return nil, nil, err
	}
	return entity, plan, nil
}

func targetName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return schema.EntityEvent
	}
	return name
}

func (e *Engine) entity(name string) (*schema.Entity, error) {
	ent, ok := e.model.Entity(targetName(name))
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "entity", Name: name}
	}
	return ent, nil
}

// relations validates hydration names and returns them deduplicated in
// request order.
func (e *Engine) relations(entity *schema.Entity, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if _, ok := entity.Relation(name); !ok {
			return nil, &apperr.NotFoundError{Kind: "relationship", Name: raw}
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Engine) onConn(ctx context.Context, fn func(*sql.Conn) ([]Row, error)) ([]Row, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return fn(conn)
}

func (e *Engine) inSnapshot(ctx context.Context, fn func(*sql.Tx) ([]Row, error)) ([]Row, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rows, nil
}

// execErr maps a failure after validation to an ExecutionError, preferring
// the context's cause when the request was canceled or timed out.
func (e *Engine) execErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperr.Execution(op, ctxErr)
	}
	return apperr.Execution(op, err)
}

func (e *Engine) logResult(op, entity string, started time.Time, stats Stats, rows int, err error) {
	attrs := []any{
		"op", op,
		"entity", entity,
		"statements", stats.Queries,
		"rows", rows,
		"duration_ms", time.Since(started).Milliseconds(),
	}
	switch outcome(err) {
	case "ok":
		e.logger.Debug("query engine request", attrs...)
	case "invalid", "not_found":
		e.logger.Debug("query engine request rejected", append(attrs, "error", err)...)
	default:
		e.logger.Warn("query engine request failed", append(attrs, "error", err)...)
	}
}

// countingQuerier counts statements sent through it.
type countingQuerier struct {
	q querier
	n atomic.Int64
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.n.Add(1)
	return c.q.QueryContext(ctx, query, args...)
}

func (c *countingQuerier) count() int { return int(c.n.Load()) }
