// Package pipeline carries committed plan mutations to the search index.
//
// The primary store is the source of truth; the index is a derived,
// repairable view. Producers publish one message per mutation onto one of
// three durable channels, keyed by plan id so messages for one aggregate stay
// in write order. Consumers are idempotent by document id, so at-least-once
// delivery is safe.
package pipeline

import "planhub/internal/plan/models"

// Channel topics. One logical stream per mutation kind.
const (
	TopicIndex  = "plan.index"
	TopicUpdate = "plan.update"
	TopicDelete = "plan.delete"
)

// Topics lists every pipeline topic, for consumer subscription and startup
// topic creation.
func Topics() []string {
	return []string{TopicIndex, TopicUpdate, TopicDelete}
}

// IndexEvent carries a freshly created aggregate.
type IndexEvent struct {
	Plan *models.Plan `json:"plan"`
}

// UpdateEvent carries the merged aggregate plus only the changed or added
// linked services, so unchanged children are not re-indexed.
type UpdateEvent struct {
	Plan            *models.Plan           `json:"plan"`
	ChangedServices []models.LinkedService `json:"changedServices,omitempty"`
}

// DeleteEvent carries the id of a deleted aggregate; the consumer cascades.
type DeleteEvent struct {
	PlanID string `json:"planId"`
}
