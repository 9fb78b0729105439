// Package handler exposes the plan aggregate over HTTP. Version tags travel
// as ETags: writes carry them back in the ETag header, conditional reads use
// If-None-Match, and merges require If-Match.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "planhub/pkg/domain-errors"
	"planhub/pkg/platform/httputil"

	"planhub/internal/plan/models"
	"planhub/internal/platform/middleware"
)

// Service defines the interface for plan operations.
type Service interface {
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Read(ctx context.Context, id, clientTag string) (*models.Plan, error)
	List(ctx context.Context) ([]*models.Plan, error)
	Merge(ctx context.Context, id string, patch map[string]any, clientTag string) (*models.Plan, error)
	Remove(ctx context.Context, id string) error
}

// Handler wires plan endpoints to the plan service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a plan handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts plan endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/plan", h.HandleCreate)
	r.Get("/v1/plan", h.HandleList)
	r.Get("/v1/plan/{id}", h.HandleRead)
	r.Patch("/v1/plan/{id}", h.HandleMerge)
	r.Delete("/v1/plan/{id}", h.HandleRemove)
}

// HandleCreate handles POST /v1/plan requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CreatePlanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, req.Plan())
	if err != nil && created == nil {
		h.logger.ErrorContext(ctx, "plan create failed",
			"request_id", requestID,
			"plan_id", req.ObjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "plan created",
		"request_id", requestID,
		"plan_id", created.ObjectID,
		"version_tag", created.VersionTag,
		"propagation_delayed", err != nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	setETag(w, created.VersionTag)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleRead handles GET /v1/plan/{id} requests. A matching If-None-Match tag
// short-circuits to 304.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	clientTag := parseTag(r.Header.Get("If-None-Match"))

	plan, err := h.service.Read(ctx, id, clientTag)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotModified) {
			setETag(w, clientTag)
		}
		httputil.WriteError(w, err)
		return
	}
	setETag(w, plan.VersionTag)
	httputil.WriteJSON(w, http.StatusOK, plan)
}

// HandleList handles GET /v1/plan requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if plans == nil {
		plans = []*models.Plan{}
	}
	httputil.WriteJSON(w, http.StatusOK, plans)
}

// HandleMerge handles PATCH /v1/plan/{id} requests. If-Match is mandatory:
// 428 without it, 412 when it is stale, 304 when the patch is a no-op.
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	id := chi.URLParam(r, "id")
	clientTag := parseTag(r.Header.Get("If-Match"))

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "patch body must be a JSON object"))
		return
	}

	merged, err := h.service.Merge(ctx, id, patch, clientTag)
	if err != nil && merged == nil {
		if dErrors.HasCode(err, dErrors.CodeNotModified) {
			setETag(w, clientTag)
			httputil.WriteError(w, err)
			return
		}
		h.logger.WarnContext(ctx, "plan merge rejected",
			"request_id", requestID,
			"plan_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "plan merged",
		"request_id", requestID,
		"plan_id", id,
		"version_tag", merged.VersionTag,
		"propagation_delayed", err != nil,
	)
	setETag(w, merged.VersionTag)
	httputil.WriteJSON(w, http.StatusOK, merged)
}

// HandleRemove handles DELETE /v1/plan/{id} requests.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	id := chi.URLParam(r, "id")

	err := h.service.Remove(ctx, id)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		httputil.WriteError(w, err)
		return
	}

	// An Unavailable error here means the delete committed but the index
	// cascade is delayed; the delete itself succeeded.
	h.logger.InfoContext(ctx, "plan deleted",
		"request_id", requestID,
		"plan_id", id,
		"propagation_delayed", err != nil,
	)
	w.WriteHeader(http.StatusNoContent)
}

func setETag(w http.ResponseWriter, tag string) {
	w.Header().Set("ETag", `"`+tag+`"`)
}

// parseTag strips the quoting and any weak-validator prefix from an ETag
// header value.
func parseTag(header string) string {
	tag := strings.TrimSpace(header)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
