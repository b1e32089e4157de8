// Package web exposes the include engine over HTTP: a list endpoint with a
// dot-path include parameter and a query endpoint accepting the full nested
// include shape in the request body.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/weft-db/weft/internal/db"
	"github.com/weft-db/weft/internal/include"
	"github.com/weft-db/weft/internal/schema"
	"github.com/weft-db/weft/internal/stitch"
)

// Handler serves entity queries with include resolution
type Handler struct {
	graph      *schema.Graph
	querier    db.Querier
	controller *stitch.Controller
	maxDepth   int
	logger     *zap.Logger
}

// HandlerConfig wires the handler's collaborators
type HandlerConfig struct {
	Graph      *schema.Graph
	Querier    db.Querier
	Controller *stitch.Controller
	MaxDepth   int
	Logger     *zap.Logger
}

// NewHandler creates the HTTP handler for entity queries
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = include.DefaultMaxDepth
	}
	return &Handler{
		graph:      cfg.Graph,
		querier:    cfg.Querier,
		controller: cfg.Controller,
		maxDepth:   maxDepth,
		logger:     logger,
	}
}

// Routes mounts the entity endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{entity}", h.List)
	r.Post("/{entity}/query", h.Query)
	return r
}

// queryRequest is the body of POST /{entity}/query
type queryRequest struct {
	Include map[string]any `json:"include"`
	Limit   *int           `json:"limit"`
	Offset  *int           `json:"offset"`
	OrderBy string         `json:"orderBy"`
	Order   string         `json:"order"`
}

// List handles GET /{entity}?include=a,b.c&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.graph.Entity(chi.URLParam(r, "entity"))
	if !ok {
		RenderError(w, http.StatusNotFound, fmt.Errorf("unknown entity %q", chi.URLParam(r, "entity")))
		return
	}

	req := queryRequest{Include: SpecFromPaths(ParseIncludePaths(r))}
	var err error
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		RenderError(w, http.StatusBadRequest, err)
		return
	}
	if req.Offset, err = queryInt(r, "offset"); err != nil {
		RenderError(w, http.StatusBadRequest, err)
		return
	}

	h.respond(w, r, entity, req)
}

// Query handles POST /{entity}/query with the nested include shape
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.graph.Entity(chi.URLParam(r, "entity"))
	if !ok {
		RenderError(w, http.StatusNotFound, fmt.Errorf("unknown entity %q", chi.URLParam(r, "entity")))
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RenderError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	h.respond(w, r, entity, req)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, entity *schema.Entity, req queryRequest) {
	if err := validateRootQuery(entity, &req); err != nil {
		RenderError(w, http.StatusBadRequest, err)
		return
	}

	// Includes are validated before any query runs: a bad spec rejects the
	// whole request
	plan, err := include.Compile(h.graph, entity.Name, req.Include, h.maxDepth)
	if err != nil {
		RenderError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := h.fetchRoot(r, entity, req)
	if err != nil {
		h.logger.Error("root query failed", zap.String("entity", entity.Name), zap.Error(err))
		RenderError(w, http.StatusInternalServerError, fmt.Errorf("query failed"))
		return
	}

	result, err := h.controller.Resolve(r.Context(), rows, plan)
	if err != nil {
		h.logger.Error("include resolution failed", zap.String("entity", entity.Name), zap.Error(err))
		RenderError(w, http.StatusInternalServerError, fmt.Errorf("include resolution failed"))
		return
	}

	RenderJSON(w, http.StatusOK, result)
}

func (h *Handler) fetchRoot(r *http.Request, entity *schema.Entity, req queryRequest) ([]map[string]interface{}, error) {
	query := fmt.Sprintf("SELECT * FROM %s", pq.QuoteIdentifier(entity.Table))
	if req.OrderBy != "" {
		query += fmt.Sprintf(" ORDER BY %s %s", pq.QuoteIdentifier(req.OrderBy), strings.ToUpper(req.Order))
	}

	var args []interface{}
	if req.Limit != nil {
		args = append(args, *req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if req.Offset != nil {
		args = append(args, *req.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := h.querier.QueryContext(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return db.ScanRows(rows)
}

func validateRootQuery(entity *schema.Entity, req *queryRequest) error {
	if req.Limit != nil && *req.Limit <= 0 {
		return errors.New("limit must be a positive integer")
	}
	if req.Offset != nil && *req.Offset < 0 {
		return errors.New("offset must be a nonnegative integer")
	}
	if req.OrderBy != "" && !entity.HasColumn(req.OrderBy) {
		return fmt.Errorf("unknown column %q", req.OrderBy)
	}
	switch req.Order {
	case "":
		req.Order = "asc"
	case "asc", "desc":
	default:
		return errors.New(`order must be "asc" or "desc"`)
	}
	return nil
}

func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}
