package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/internal/index"
	"planhub/internal/index/memory"
	"planhub/internal/pipeline"
	"planhub/internal/plan/models"
	"planhub/internal/platform/kafka/consumer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPlan() *models.Plan {
	return &models.Plan{
		ObjectID:   "p1",
		PlanType:   "inNetwork",
		VersionTag: "tag-1",
		CostShare:  models.CostShare{ObjectID: "c1", Deductible: 100, Copay: 20},
		LinkedServices: []models.LinkedService{
			{
				ObjectID:         "s1",
				ServiceDetail:    models.ServiceDetail{ObjectID: "d1", Name: "Yearly physical"},
				ServiceCostShare: models.CostShare{ObjectID: "sc1", Deductible: 10},
			},
		},
	}
}

func message(t *testing.T, topic, key string, event any) *consumer.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return &consumer.Message{Topic: topic, Key: []byte(key), Value: value, Attempt: 1}
}

func TestIndexHandlerUpsertsAllDocuments(t *testing.T) {
	idx := memory.New()
	h := NewIndexHandler(idx, testLogger(), nil)
	ctx := context.Background()

	msg := message(t, pipeline.TopicIndex, "p1", pipeline.IndexEvent{Plan: testPlan()})
	require.NoError(t, h.Handle(ctx, msg))
	assert.Equal(t, 5, idx.Len())

	// redelivery is a no-op beyond rewriting the same documents
	require.NoError(t, h.Handle(ctx, msg))
	assert.Equal(t, 5, idx.Len())

	root, err := idx.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipPlan, root.Relationship)
	assert.Equal(t, "tag-1", root.Fields["versionTag"])
}

func TestIndexHandlerCommitsUndecodablePayload(t *testing.T) {
	idx := memory.New()
	h := NewIndexHandler(idx, testLogger(), nil)

	msg := &consumer.Message{Topic: pipeline.TopicIndex, Key: []byte("p1"), Value: []byte("{not json")}
	assert.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 0, idx.Len())
}

func TestUpdateHandlerCommitsEventWithoutPlan(t *testing.T) {
	idx := memory.New()
	h := NewUpdateHandler(idx, testLogger(), nil)

	msg := &consumer.Message{Topic: pipeline.TopicUpdate, Key: []byte("p1"), Value: []byte(`{"plan":null}`)}
	assert.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 0, idx.Len())
}

func TestUpdateHandlerTouchesOnlyChangedServices(t *testing.T) {
	idx := memory.New()
	ctx := context.Background()

	// seed the index with the original projection
	require.NoError(t, NewIndexHandler(idx, testLogger(), nil).Handle(ctx,
		message(t, pipeline.TopicIndex, "p1", pipeline.IndexEvent{Plan: testPlan()})))
	before, err := idx.Get(ctx, "s1")
	require.NoError(t, err)

	updated := testPlan()
	updated.VersionTag = "tag-2"
	added := models.LinkedService{
		ObjectID:         "s2",
		ServiceDetail:    models.ServiceDetail{ObjectID: "d2", Name: "Dental"},
		ServiceCostShare: models.CostShare{ObjectID: "sc2", Copay: 5},
	}
	updated.LinkedServices = append(updated.LinkedServices, added)

	h := NewUpdateHandler(idx, testLogger(), nil)
	msg := message(t, pipeline.TopicUpdate, "p1", pipeline.UpdateEvent{
		Plan:            updated,
		ChangedServices: []models.LinkedService{added},
	})
	require.NoError(t, h.Handle(ctx, msg))

	// 5 original + 3 for the new service subtree
	assert.Equal(t, 8, idx.Len())

	root, err := idx.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "tag-2", root.Fields["versionTag"])

	after, err := idx.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "unchanged service must not be rewritten")

	s2, err := idx.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "p1", s2.ParentID)
}

func TestDeleteHandlerCascades(t *testing.T) {
	idx := memory.New()
	ctx := context.Background()

	require.NoError(t, NewIndexHandler(idx, testLogger(), nil).Handle(ctx,
		message(t, pipeline.TopicIndex, "p1", pipeline.IndexEvent{Plan: testPlan()})))
	require.Equal(t, 5, idx.Len())

	h := NewDeleteHandler(idx, testLogger(), nil)
	msg := message(t, pipeline.TopicDelete, "p1", pipeline.DeleteEvent{PlanID: "p1"})
	require.NoError(t, h.Handle(ctx, msg))
	assert.Equal(t, 0, idx.Len())

	// deleting again finds nothing and still succeeds
	assert.NoError(t, h.Handle(ctx, msg))
}

func TestDeleteHandlerEmptyIndex(t *testing.T) {
	h := NewDeleteHandler(memory.New(), testLogger(), nil)
	msg := message(t, pipeline.TopicDelete, "ghost", pipeline.DeleteEvent{PlanID: "ghost"})
	assert.NoError(t, h.Handle(context.Background(), msg))
}

type failingIndex struct {
	index.Store
	err error
}

func (f *failingIndex) Upsert(ctx context.Context, doc index.Document) error { return f.err }

func TestIndexHandlerPropagatesBackendFailure(t *testing.T) {
	wantErr := errors.New("index backend down")
	h := NewIndexHandler(&failingIndex{Store: memory.New(), err: wantErr}, testLogger(), nil)

	msg := message(t, pipeline.TopicIndex, "p1", pipeline.IndexEvent{Plan: testPlan()})
	err := h.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestRouterDispatch(t *testing.T) {
	idx := memory.New()
	router := NewRouter(testLogger())
	router.Register(pipeline.TopicIndex, NewIndexHandler(idx, testLogger(), nil))

	require.NoError(t, router.Handle(context.Background(),
		message(t, pipeline.TopicIndex, "p1", pipeline.IndexEvent{Plan: testPlan()})))
	assert.Equal(t, 5, idx.Len())

	// unknown topics are committed, not retried
	assert.NoError(t, router.Handle(context.Background(),
		&consumer.Message{Topic: "unknown", Key: []byte("k")}))
}
