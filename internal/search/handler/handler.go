// Package handler exposes the flattened search projection over HTTP. It
// reads the index only; point reads of aggregates go through the plan
// endpoints and the primary store.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "planhub/pkg/domain-errors"
	"planhub/pkg/platform/httputil"
	"planhub/pkg/platform/sentinel"

	"planhub/internal/index"
	"planhub/internal/plan/models"
)

// Handler wires search endpoints to the index store.
type Handler struct {
	index  index.Store
	logger *slog.Logger
}

// New constructs a search handler.
func New(idx index.Store, logger *slog.Logger) *Handler {
	return &Handler{index: idx, logger: logger}
}

// Register mounts search endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/search/plans", h.HandlePlans)
	r.Get("/v1/search/plan/{id}", h.HandlePlanTree)
	r.Get("/v1/search/plan/{id}/services", h.HandlePlanServices)
	r.Get("/v1/search/range", h.HandleRange)
}

// PlanTreeResponse is the HTTP response for GET /v1/search/plan/{id}: the
// root document plus every document routed to it.
type PlanTreeResponse struct {
	Plan     index.Document   `json:"plan"`
	Children []index.Document `json:"children"`
}

// HandlePlanTree handles GET /v1/search/plan/{id} requests.
func (h *Handler) HandlePlanTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	root, err := h.index.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, translateIndexErr(err, "plan document"))
		return
	}
	if root.Relationship != models.RelationshipPlan {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "document is not a plan"))
		return
	}

	children, err := h.collectTree(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "index walk failed",
			"plan_id", id,
			"error", err,
		)
		httputil.WriteError(w, translateIndexErr(err, "plan children"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, PlanTreeResponse{Plan: root, Children: children})
}

// collectTree walks QueryByParent from the root down. The tree is two levels
// deep at most (plan -> services -> detail/cost share), so the walk is a
// short breadth-first pass.
func (h *Handler) collectTree(ctx context.Context, rootID string) ([]index.Document, error) {
	var out []index.Document
	frontier := []string{rootID}
	for len(frontier) > 0 {
		var next []string
		for _, parent := range frontier {
			docs, err := h.index.QueryByParent(ctx, parent)
			if err != nil {
				return nil, err
			}
			for _, doc := range docs {
				out = append(out, doc)
				next = append(next, doc.ID)
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// HandlePlanServices handles GET /v1/search/plan/{id}/services requests,
// returning only linkedService documents of the plan.
func (h *Handler) HandlePlanServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	docs, err := h.index.QueryByParent(ctx, id)
	if err != nil {
		httputil.WriteError(w, translateIndexErr(err, "plan services"))
		return
	}
	services := make([]index.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.Relationship == models.RelationshipLinkedService {
			services = append(services, doc)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	httputil.WriteJSON(w, http.StatusOK, services)
}

// HandlePlans handles GET /v1/search/plans requests: plan documents matching
// the optional planType, org, and objectType filters as exact terms. No
// filters lists every indexed plan.
func (h *Handler) HandlePlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	terms := map[string]string{}
	if v := strings.TrimSpace(q.Get("planType")); v != "" {
		terms["planType"] = v
	}
	if v := strings.TrimSpace(q.Get("org")); v != "" {
		terms["organization"] = v
	}
	if v := strings.TrimSpace(q.Get("objectType")); v != "" {
		terms["objectType"] = v
	}

	docs, err := h.index.SearchTerms(ctx, models.RelationshipPlan, terms)
	if err != nil {
		httputil.WriteError(w, translateIndexErr(err, "plan search"))
		return
	}
	if docs == nil {
		docs = []index.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

// HandleRange handles GET /v1/search/range requests. Query parameters:
// field (required), gt, lt (numeric, at least one required), relationship
// (optional, defaults to plan cost shares).
func (h *Handler) HandleRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	field := strings.TrimSpace(q.Get("field"))
	if field == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "field is required"))
		return
	}
	relationship := strings.TrimSpace(q.Get("relationship"))
	if relationship == "" {
		relationship = models.RelationshipPlanCostShare
	}

	gt, err := parseBound(q.Get("gt"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "gt must be numeric"))
		return
	}
	lt, err := parseBound(q.Get("lt"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "lt must be numeric"))
		return
	}
	if gt == nil && lt == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one of gt, lt is required"))
		return
	}

	docs, err := h.index.SearchRange(ctx, relationship, field, gt, lt)
	if err != nil {
		httputil.WriteError(w, translateIndexErr(err, "range search"))
		return
	}
	if docs == nil {
		docs = []index.Document{}
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

func parseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func translateIndexErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "search index unavailable")
}
