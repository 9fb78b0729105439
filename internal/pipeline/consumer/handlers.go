// Package consumer holds the pipeline's worker-side handlers. Every handler
// is idempotent by document id: redelivery after a crash or a nack repeats
// upserts and deletes without harm, which is what makes at-least-once
// delivery safe to scale across worker instances.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"planhub/internal/index"
	"planhub/internal/pipeline"
	"planhub/internal/plan/convert"
	"planhub/internal/platform/kafka/consumer"
	"planhub/internal/platform/metrics"
)

// IndexHandler projects a freshly created aggregate into the index.
type IndexHandler struct {
	index   index.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewIndexHandler creates the create-channel handler.
func NewIndexHandler(idx index.Store, logger *slog.Logger, m *metrics.Metrics) *IndexHandler {
	return &IndexHandler{index: idx, logger: logger, metrics: m}
}

func (h *IndexHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event pipeline.IndexEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Undecodable payloads would poison the channel; log and commit.
		h.logger.Error("dropping undecodable index event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}
	docs, skips := convert.Flatten(event.Plan)
	logSkips(ctx, h.logger, string(msg.Key), skips)
	return upsertAll(ctx, h.index, docs, h.metrics)
}

// UpdateHandler re-projects the aggregate root and only the changed services.
type UpdateHandler struct {
	index   index.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewUpdateHandler creates the update-channel handler.
func NewUpdateHandler(idx index.Store, logger *slog.Logger, m *metrics.Metrics) *UpdateHandler {
	return &UpdateHandler{index: idx, logger: logger, metrics: m}
}

func (h *UpdateHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event pipeline.UpdateEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("dropping undecodable update event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}
	if event.Plan == nil {
		h.logger.Error("dropping update event without a plan",
			"key", string(msg.Key),
		)
		return nil
	}

	// Root first (its versionTag changed), then the changed children.
	docs, skips := convert.FlattenRoot(event.Plan)
	svcDocs, svcSkips := convert.FlattenServices(event.Plan.ObjectID, event.ChangedServices)
	docs = append(docs, svcDocs...)
	logSkips(ctx, h.logger, string(msg.Key), append(skips, svcSkips...))
	return upsertAll(ctx, h.index, docs, h.metrics)
}

// DeleteHandler cascades an aggregate deletion through the index.
type DeleteHandler struct {
	index   index.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDeleteHandler creates the delete-channel handler.
func NewDeleteHandler(idx index.Store, logger *slog.Logger, m *metrics.Metrics) *DeleteHandler {
	return &DeleteHandler{index: idx, logger: logger, metrics: m}
}

// Handle deletes children first, then the root, then sweeps for documents
// still referencing the plan as parent. The sweep guards against updates
// racing the delete on another worker; "nothing to delete" is success.
func (h *DeleteHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event pipeline.DeleteEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("dropping undecodable delete event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}
	planID := event.PlanID
	if planID == "" {
		planID = string(msg.Key)
	}

	removed, err := h.index.DeleteByParent(ctx, planID)
	if err != nil {
		return fmt.Errorf("delete children of %s: %w", planID, err)
	}
	if err := h.index.Delete(ctx, planID); err != nil {
		return fmt.Errorf("delete root %s: %w", planID, err)
	}

	orphans, err := h.index.QueryByParent(ctx, planID)
	if err != nil {
		return fmt.Errorf("sweep orphans of %s: %w", planID, err)
	}
	for _, doc := range orphans {
		if err := h.index.Delete(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete orphan %s: %w", doc.ID, err)
		}
		removed++
	}

	if h.metrics != nil {
		h.metrics.DocumentsDeleted.Add(float64(removed + 1))
	}
	h.logger.InfoContext(ctx, "cascade delete applied",
		"plan_id", planID,
		"documents_removed", removed,
		"orphans_swept", len(orphans),
	)
	return nil
}

func upsertAll(ctx context.Context, idx index.Store, docs []index.Document, m *metrics.Metrics) error {
	for _, doc := range docs {
		if err := idx.Upsert(ctx, doc); err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
		if m != nil {
			m.DocumentsUpserted.Inc()
		}
	}
	return nil
}

func logSkips(ctx context.Context, logger *slog.Logger, key string, skips []convert.Skip) {
	for _, skip := range skips {
		logger.WarnContext(ctx, "entity excluded from indexing",
			"plan_id", key,
			"relationship", skip.Relationship,
			"reason", skip.Reason,
		)
	}
}
