package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"planhub/internal/plan/models"
	"planhub/pkg/platform/sentinel"
)

// Queue is the broker producer contract: durable, at-least-once, ordered per
// key. The platform Kafka producer satisfies it; tests use a memory queue.
type Queue interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Producer publishes mutation events for the pipeline consumers.
type Producer struct {
	queue Queue
}

// NewProducer wraps a queue.
func NewProducer(queue Queue) *Producer {
	return &Producer{queue: queue}
}

// PlanCreated enqueues a create/index event carrying the full aggregate.
func (p *Producer) PlanCreated(ctx context.Context, plan *models.Plan) error {
	return p.publish(ctx, TopicIndex, plan.ObjectID, IndexEvent{Plan: plan})
}

// PlanUpdated enqueues an update event carrying the aggregate and only the
// changed or added linked services.
func (p *Producer) PlanUpdated(ctx context.Context, plan *models.Plan, changed []models.LinkedService) error {
	return p.publish(ctx, TopicUpdate, plan.ObjectID, UpdateEvent{Plan: plan, ChangedServices: changed})
}

// PlanDeleted enqueues a delete/cascade event.
func (p *Producer) PlanDeleted(ctx context.Context, planID string) error {
	return p.publish(ctx, TopicDelete, planID, DeleteEvent{PlanID: planID})
}

func (p *Producer) publish(ctx context.Context, topic, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	if err := p.queue.Produce(ctx, topic, []byte(key), value); err != nil {
		return fmt.Errorf("%w: enqueue %s for %s: %v", sentinel.ErrUnavailable, topic, key, err)
	}
	return nil
}
