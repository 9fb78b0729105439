package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"planhub/internal/plan/models"
	"planhub/pkg/platform/sentinel"
)

const planKeyPrefix = "plan:"

// RedisStore is the production Store. The aggregate is one JSON value per
// plan id; PutIf uses WATCH so concurrent conditional writes against the same
// id resolve with exactly one winner and no mutex.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed aggregate store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func planKey(id string) string { return planKeyPrefix + id }

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Plan, error) {
	raw, err := s.client.Get(ctx, planKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get plan %s: %v", sentinel.ErrUnavailable, id, err)
	}
	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", id, err)
	}
	return &plan, nil
}

func (s *RedisStore) Put(ctx context.Context, plan *models.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", plan.ObjectID, err)
	}
	if err := s.client.Set(ctx, planKey(plan.ObjectID), raw, 0).Err(); err != nil {
		return fmt.Errorf("%w: put plan %s: %v", sentinel.ErrUnavailable, plan.ObjectID, err)
	}
	return nil
}

func (s *RedisStore) PutIf(ctx context.Context, plan *models.Plan, expectedTag string) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", plan.ObjectID, err)
	}
	key := planKey(plan.ObjectID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if expectedTag != "" {
				return sentinel.ErrNotFound
			}
		case err != nil:
			return fmt.Errorf("%w: read plan %s: %v", sentinel.ErrUnavailable, plan.ObjectID, err)
		default:
			if expectedTag == "" {
				return sentinel.ErrConflict
			}
			var stored models.Plan
			if err := json.Unmarshal(current, &stored); err != nil {
				return fmt.Errorf("unmarshal plan %s: %w", plan.ObjectID, err)
			}
			if stored.VersionTag != expectedTag {
				return sentinel.ErrTagMismatch
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)

	// Another writer touched the key between WATCH and EXEC; the caller's
	// tag is stale by definition.
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrTagMismatch
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, planKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: delete plan %s: %v", sentinel.ErrUnavailable, id, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, planKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists plan %s: %v", sentinel.ErrUnavailable, id, err)
	}
	return n > 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*models.Plan, error) {
	var plans []*models.Plan
	iter := s.client.Scan(ctx, 0, planKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list plans: %v", sentinel.ErrUnavailable, err)
		}
		var plan models.Plan
		if err := json.Unmarshal(raw, &plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan %s: %w", iter.Val(), err)
		}
		plans = append(plans, &plan)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan plans: %v", sentinel.ErrUnavailable, err)
	}
	return plans, nil
}
