//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"planhub/internal/plan/models"
	"planhub/internal/plan/store"
	"planhub/pkg/platform/sentinel"
	"planhub/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func testPlan(id, tag string) *models.Plan {
	return &models.Plan{
		ObjectID:   id,
		ObjectType: "plan",
		PlanType:   "inNetwork",
		CostShare:  models.CostShare{ObjectID: id + "-cs", Deductible: 2000},
		VersionTag: tag,
	}
}

func (s *RedisStoreSuite) TestPutIfCreateAndGet() {
	ctx := context.Background()
	plan := testPlan("p-"+uuid.NewString(), "tag-1")

	s.Require().NoError(s.store.PutIf(ctx, plan, ""))

	got, err := s.store.Get(ctx, plan.ObjectID)
	s.Require().NoError(err)
	s.Equal(plan.VersionTag, got.VersionTag)
	s.Equal(plan.CostShare.ObjectID, got.CostShare.ObjectID)
}

func (s *RedisStoreSuite) TestPutIfCreateConflictsWhenPresent() {
	ctx := context.Background()
	plan := testPlan("p-"+uuid.NewString(), "tag-1")

	s.Require().NoError(s.store.PutIf(ctx, plan, ""))
	err := s.store.PutIf(ctx, testPlan(plan.ObjectID, "tag-2"), "")
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func (s *RedisStoreSuite) TestPutIfTagMismatch() {
	ctx := context.Background()
	plan := testPlan("p-"+uuid.NewString(), "tag-1")

	s.Require().NoError(s.store.PutIf(ctx, plan, ""))
	err := s.store.PutIf(ctx, testPlan(plan.ObjectID, "tag-2"), "stale")
	s.True(errors.Is(err, sentinel.ErrTagMismatch))

	// The stored value is untouched.
	got, err := s.store.Get(ctx, plan.ObjectID)
	s.Require().NoError(err)
	s.Equal("tag-1", got.VersionTag)
}

func (s *RedisStoreSuite) TestPutIfUpdateMissing() {
	ctx := context.Background()
	err := s.store.PutIf(ctx, testPlan("p-"+uuid.NewString(), "tag-1"), "some-tag")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *RedisStoreSuite) TestDeleteAndExists() {
	ctx := context.Background()
	plan := testPlan("p-"+uuid.NewString(), "tag-1")
	s.Require().NoError(s.store.PutIf(ctx, plan, ""))

	exists, err := s.store.Exists(ctx, plan.ObjectID)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(s.store.Delete(ctx, plan.ObjectID))

	exists, err = s.store.Exists(ctx, plan.ObjectID)
	s.Require().NoError(err)
	s.False(exists)

	s.True(errors.Is(s.store.Delete(ctx, plan.ObjectID), sentinel.ErrNotFound))
}

func (s *RedisStoreSuite) TestList() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.PutIf(ctx, testPlan("p-"+uuid.NewString(), "tag"), ""))
	}

	plans, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(plans, 3)
}

// TestConcurrentConditionalWriters verifies the WATCH-based conditional write:
// many writers race on the same expected tag and exactly one wins.
func (s *RedisStoreSuite) TestConcurrentConditionalWriters() {
	ctx := context.Background()
	plan := testPlan("p-"+uuid.NewString(), "tag-0")
	s.Require().NoError(s.store.PutIf(ctx, plan, ""))

	const writers = 32
	var wg sync.WaitGroup
	var wins, losses atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next := testPlan(plan.ObjectID, "tag-"+uuid.NewString())
			err := s.store.PutIf(ctx, next, "tag-0")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrTagMismatch):
				losses.Add(1)
			default:
				s.T().Errorf("writer %d: unexpected error: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), losses.Load())

	got, err := s.store.Get(ctx, plan.ObjectID)
	s.Require().NoError(err)
	s.NotEqual("tag-0", got.VersionTag)
}
