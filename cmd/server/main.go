package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"planhub/internal/index"
	indexmemory "planhub/internal/index/memory"
	indexpostgres "planhub/internal/index/postgres"
	"planhub/internal/pipeline"
	pipelineconsumer "planhub/internal/pipeline/consumer"
	planhandler "planhub/internal/plan/handler"
	"planhub/internal/plan/service"
	planstore "planhub/internal/plan/store"
	"planhub/internal/platform/config"
	"planhub/internal/platform/httpserver"
	kafkaconsumer "planhub/internal/platform/kafka/consumer"
	kafkaproducer "planhub/internal/platform/kafka/producer"
	"planhub/internal/platform/logger"
	"planhub/internal/platform/metrics"
	"planhub/internal/platform/redis"
	searchhandler "planhub/internal/search/handler"
	httptransport "planhub/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Primary store: Redis when configured, in-process memory otherwise.
	var plans planstore.Store
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		plans = planstore.NewRedis(redisClient.Client)
		defer redisClient.Close()
	} else {
		log.Warn("redis not configured, using in-process plan store")
		plans = planstore.NewMemory()
	}

	// Search index: Postgres when configured, in-process memory otherwise.
	var idx index.Store
	var pgHealth httptransport.HealthChecker
	if cfg.Postgres.DSN != "" {
		db, err := indexpostgres.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := indexpostgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure index schema", "error", err)
			os.Exit(1)
		}
		idx = pg
		pgHealth = healthFunc(db.PingContext)
	} else {
		log.Warn("postgres not configured, using in-process search index")
		idx = indexmemory.New()
	}

	// Broker: Kafka when configured, an in-process queue drained by the
	// same handlers otherwise.
	var queue pipeline.Queue
	var memQueue *pipeline.MemoryQueue
	var kafkaHealth httptransport.HealthChecker
	var kp *kafkaproducer.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err = kafkaproducer.New(cfg.Kafka)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kp.Close()
		if err := kp.EnsureTopics(ctx, pipeline.Topics()...); err != nil {
			log.Error("failed to ensure topics", "error", err)
			os.Exit(1)
		}
		queue = kp
		kafkaHealth = kp
	} else {
		log.Warn("kafka not configured, using in-process pipeline queue")
		memQueue = pipeline.NewMemoryQueue()
		queue = memQueue
	}

	svc := service.New(plans, pipeline.NewProducer(queue), log, service.WithMetrics(m))

	router := pipelineconsumer.NewRouter(log)
	router.Register(pipeline.TopicIndex, pipelineconsumer.NewIndexHandler(idx, log, m))
	router.Register(pipeline.TopicUpdate, pipelineconsumer.NewUpdateHandler(idx, log, m))
	router.Register(pipeline.TopicDelete, pipelineconsumer.NewDeleteHandler(idx, log, m))

	httpRouter := httptransport.NewRouter(httptransport.Dependencies{
		Plans:   planhandler.New(svc, log),
		Search:  searchhandler.New(idx, log),
		Logger:  log,
		Metrics: m,
		Health: map[string]httptransport.HealthChecker{
			"redis":    redisChecker(redisClient),
			"postgres": pgHealth,
			"kafka":    kafkaHealth,
		},
		RequestTimeout: cfg.RequestTimeout,
	})
	srv := httpserver.New(cfg.Addr, httpRouter)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting planhub", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if kp != nil {
		consumer, err := kafkaconsumer.New(cfg.Kafka, pipeline.Topics(), router, log,
			kafkaconsumer.WithRetryObserver(func(topic string) {
				m.PipelineRetries.WithLabelValues(topic).Inc()
			}),
		)
		if err != nil {
			log.Error("failed to start consumer", "error", err)
			os.Exit(1)
		}
		group.Go(func() error { return consumer.Run(ctx) })
	} else {
		group.Go(func() error { return drainLoop(ctx, memQueue, router) })
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// drainLoop feeds the in-process queue through the same topic router the
// Kafka consumer uses, so single-node runs keep identical pipeline semantics.
func drainLoop(ctx context.Context, queue *pipeline.MemoryQueue, router *pipelineconsumer.Router) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			queue.Drain(ctx, func(ctx context.Context, msg pipeline.QueuedMessage) error {
				return router.Handle(ctx, &kafkaconsumer.Message{
					Topic: msg.Topic,
					Key:   msg.Key,
					Value: msg.Value,
				})
			})
		}
	}
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func redisChecker(c *redis.Client) httptransport.HealthChecker {
	if c == nil {
		return nil
	}
	return c
}
