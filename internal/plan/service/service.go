// Package service is the concurrency controller for plan aggregates. Every
// mutation runs through an optimistic-concurrency protocol: version tags are
// content fingerprints, conditional writes resolve concurrent writers, and
// each committed mutation is enqueued for asynchronous index propagation.
package service

import (
	"context"
	"errors"
	"log/slog"

	dErrors "planhub/pkg/domain-errors"
	"planhub/pkg/platform/sentinel"

	"planhub/internal/pipeline"
	"planhub/internal/plan/fingerprint"
	"planhub/internal/plan/models"
	"planhub/internal/plan/store"
	"planhub/internal/platform/metrics"
)

// Queue is the producer-side pipeline contract the controller needs.
type Queue interface {
	PlanCreated(ctx context.Context, plan *models.Plan) error
	PlanUpdated(ctx context.Context, plan *models.Plan, changed []models.LinkedService) error
	PlanDeleted(ctx context.Context, planID string) error
}

var _ Queue = (*pipeline.Producer)(nil)

// Service mediates every plan mutation.
type Service struct {
	store   store.Store
	queue   Queue
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics attaches the shared metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a plan service.
func New(st store.Store, queue Queue, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: st, queue: queue, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new aggregate and enqueues its index projection.
// The version tag is derived from content before the write; the conditional
// create fails with a conflict when the id already exists.
func (s *Service) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if plan == nil || plan.ObjectID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "objectId is required")
	}

	stored := plan.Clone()
	stored.VersionTag = ""
	tag, err := fingerprint.ComputeAggregate(stored)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "aggregate is not encodable")
	}
	stored.VersionTag = tag

	if err := s.store.PutIf(ctx, stored, ""); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "plan already exists")
		case errors.Is(err, sentinel.ErrUnavailable):
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "primary store unavailable")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store plan")
		}
	}
	if s.metrics != nil {
		s.metrics.PlansCreated.Inc()
	}

	if err := s.queue.PlanCreated(ctx, stored); err != nil {
		// The write is committed; the index is a repairable view. Surface
		// queue unavailability without rolling back.
		s.noteEnqueueFailure(ctx, "index", stored.ObjectID, err)
		return stored, dErrors.Wrap(err, dErrors.CodeUnavailable, "plan stored but index propagation is delayed")
	}
	return stored, nil
}

// Read fetches an aggregate, honoring conditional reads: a client tag equal
// to the stored tag short-circuits to NotModified.
func (s *Service) Read(ctx context.Context, id, clientTag string) (*models.Plan, error) {
	plan, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "plan")
	}
	if clientTag != "" && clientTag == plan.VersionTag {
		return nil, dErrors.New(dErrors.CodeNotModified, "plan unchanged")
	}
	return plan, nil
}

// List returns every stored aggregate.
func (s *Service) List(ctx context.Context) ([]*models.Plan, error) {
	plans, err := s.store.List(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "plans")
	}
	return plans, nil
}

// Merge applies a merge patch under the optimistic-concurrency protocol.
// A missing client tag is rejected outright; a stale one fails the
// precondition. Concurrent writers race only at the conditional write, where
// exactly one wins. A patch that leaves the fingerprint unchanged is a
// NotModified no-op: no write, no enqueue.
func (s *Service) Merge(ctx context.Context, id string, patch map[string]any, clientTag string) (*models.Plan, error) {
	if clientTag == "" {
		return nil, dErrors.New(dErrors.CodePreconditionRequired, "version tag is required for merge")
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err, "plan")
	}
	if current.VersionTag != clientTag {
		return nil, dErrors.New(dErrors.CodePreconditionFailed, "version tag does not match stored plan")
	}

	base, err := current.AsMap()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode stored plan")
	}
	// The tag is derived and the id is the address; neither is patchable.
	delete(patch, "versionTag")
	delete(patch, "objectId")
	merged := applyPatch(base, patch)

	next, err := models.FromMap(merged)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "patch does not produce a valid plan")
	}
	next.ObjectID = id

	newTag, err := fingerprint.ComputeAggregate(next)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "merged aggregate is not encodable")
	}
	if newTag == current.VersionTag {
		return nil, dErrors.New(dErrors.CodeNotModified, "patch is a no-op")
	}
	next.VersionTag = newTag

	if err := s.store.PutIf(ctx, next, clientTag); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrTagMismatch):
			return nil, dErrors.New(dErrors.CodePreconditionFailed, "plan was modified by another writer")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "plan not found")
		case errors.Is(err, sentinel.ErrUnavailable):
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "primary store unavailable")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store merged plan")
		}
	}
	if s.metrics != nil {
		s.metrics.PlansMerged.Inc()
	}

	changed := changedServices(current, next)
	if err := s.queue.PlanUpdated(ctx, next, changed); err != nil {
		s.noteEnqueueFailure(ctx, "update", id, err)
		return next, dErrors.Wrap(err, dErrors.CodeUnavailable, "plan updated but index propagation is delayed")
	}
	return next, nil
}

// Remove deletes an aggregate and everything it owns from the primary store
// and enqueues the index cascade. The aggregate is one stored value, so the
// root and its owned children cannot be torn apart by a crash mid-delete.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return translateStoreErr(err, "plan")
	}
	if s.metrics != nil {
		s.metrics.PlansDeleted.Inc()
	}

	if err := s.queue.PlanDeleted(ctx, id); err != nil {
		s.noteEnqueueFailure(ctx, "delete", id, err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "plan deleted but index propagation is delayed")
	}
	return nil
}

// changedServices lists linked services that are new or whose content
// changed, by canonical JSON comparison against the previous aggregate.
func changedServices(before, after *models.Plan) []models.LinkedService {
	previous := make(map[string]string, len(before.LinkedServices))
	for _, svc := range before.LinkedServices {
		previous[svc.ObjectID] = canonicalJSON(svc)
	}

	var changed []models.LinkedService
	for _, svc := range after.LinkedServices {
		if prev, ok := previous[svc.ObjectID]; ok && prev == canonicalJSON(svc) {
			continue
		}
		changed = append(changed, svc)
	}
	return changed
}

func (s *Service) noteEnqueueFailure(ctx context.Context, channel, id string, err error) {
	if s.metrics != nil {
		s.metrics.EnqueueFailures.Inc()
	}
	s.logger.ErrorContext(ctx, "enqueue failed after committed write",
		"channel", channel,
		"plan_id", id,
		"error", err,
	)
}

func translateStoreErr(err error, what string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "primary store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "primary store error")
	}
}
