//go:build integration

package pipeline_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"planhub/internal/index/memory"
	"planhub/internal/pipeline"
	pipelineconsumer "planhub/internal/pipeline/consumer"
	"planhub/internal/plan/models"
	"planhub/internal/platform/config"
	kafkaconsumer "planhub/internal/platform/kafka/consumer"
	kafkaproducer "planhub/internal/platform/kafka/producer"
	"planhub/pkg/testutil/containers"
)

type PipelineSuite struct {
	suite.Suite
	cfg      config.KafkaConfig
	producer *kafkaproducer.Producer
}

func TestPipelineSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupSuite() {
	rp := containers.NewRedpandaContainer(s.T())
	s.cfg = config.KafkaConfig{
		Brokers: []string{rp.Broker},
		Group:   "planhub-test-" + uuid.NewString(),
	}
	var err error
	s.producer, err = kafkaproducer.New(s.cfg)
	s.Require().NoError(err)
	s.Require().NoError(s.producer.EnsureTopics(context.Background(), pipeline.Topics()...))
}

func (s *PipelineSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

// TestCreateMergeDeleteRoundTrip pushes create, update, and delete events
// through a real broker and waits for the index projection to converge.
func (s *PipelineSuite) TestCreateMergeDeleteRoundTrip() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	idx := memory.New()
	logger := slog.New(slog.DiscardHandler)

	router := pipelineconsumer.NewRouter(logger)
	router.Register(pipeline.TopicIndex, pipelineconsumer.NewIndexHandler(idx, logger, nil))
	router.Register(pipeline.TopicUpdate, pipelineconsumer.NewUpdateHandler(idx, logger, nil))
	router.Register(pipeline.TopicDelete, pipelineconsumer.NewDeleteHandler(idx, logger, nil))

	consumer, err := kafkaconsumer.New(s.cfg, pipeline.Topics(), router, logger)
	s.Require().NoError(err)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(consumerCtx)
	}()
	defer func() {
		stopConsumer()
		<-done
	}()

	events := pipeline.NewProducer(s.producer)
	planID := "p-" + uuid.NewString()
	plan := &models.Plan{
		ObjectID:   planID,
		ObjectType: "plan",
		PlanType:   "inNetwork",
		CostShare:  models.CostShare{ObjectID: planID + "-cs", Deductible: 2000, Copay: 23},
		LinkedServices: []models.LinkedService{
			{
				ObjectID:         planID + "-s1",
				ServiceDetail:    models.ServiceDetail{ObjectID: planID + "-d1", Name: "Yearly physical"},
				ServiceCostShare: models.CostShare{ObjectID: planID + "-sc1", Deductible: 10},
			},
		},
		VersionTag: "tag-1",
	}

	s.Require().NoError(events.PlanCreated(ctx, plan))
	s.waitForDocs(ctx, idx, 5)

	added := models.LinkedService{
		ObjectID:         planID + "-s2",
		ServiceDetail:    models.ServiceDetail{ObjectID: planID + "-d2", Name: "Well baby"},
		ServiceCostShare: models.CostShare{ObjectID: planID + "-sc2", Copay: 175},
	}
	plan.LinkedServices = append(plan.LinkedServices, added)
	plan.VersionTag = "tag-2"
	s.Require().NoError(events.PlanUpdated(ctx, plan, []models.LinkedService{added}))
	s.waitForDocs(ctx, idx, 8)

	root, err := idx.Get(ctx, planID)
	s.Require().NoError(err)
	s.Equal("tag-2", root.Fields["versionTag"])

	s.Require().NoError(events.PlanDeleted(ctx, planID))
	s.waitForDocs(ctx, idx, 0)
}

func (s *PipelineSuite) waitForDocs(ctx context.Context, idx *memory.Store, want int) {
	s.T().Helper()
	deadline := time.NewTimer(60 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.FailNowf("context ended waiting for index", "want %d docs, have %d", want, idx.Len())
		case <-deadline.C:
			s.FailNowf("timed out waiting for index", "want %d docs, have %d", want, idx.Len())
		case <-tick.C:
			if idx.Len() == want {
				return
			}
		}
	}
}
