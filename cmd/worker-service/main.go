// Command worker-service runs the publisher worker and ordered stream
// processor against a Postgres-backed coordination function and a
// configurable transport backend.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/relaymesh/workcoordinator/pkg/cache"
	cachememory "github.com/relaymesh/workcoordinator/pkg/cache/adapters/memory"
	cacheredis "github.com/relaymesh/workcoordinator/pkg/cache/adapters/redis"
	"github.com/relaymesh/workcoordinator/pkg/concurrency/distlock"
	distlockmemory "github.com/relaymesh/workcoordinator/pkg/concurrency/distlock/adapters/memory"
	distlockredis "github.com/relaymesh/workcoordinator/pkg/concurrency/distlock/adapters/redis"
	"github.com/relaymesh/workcoordinator/pkg/config"
	"github.com/relaymesh/workcoordinator/pkg/coordination"
	coordpg "github.com/relaymesh/workcoordinator/pkg/coordination/postgres"
	"github.com/relaymesh/workcoordinator/pkg/deadletter"
	"github.com/relaymesh/workcoordinator/pkg/dedupcache"
	"github.com/relaymesh/workcoordinator/pkg/instance"
	"github.com/relaymesh/workcoordinator/pkg/logger"
	"github.com/relaymesh/workcoordinator/pkg/metrics"
	"github.com/relaymesh/workcoordinator/pkg/publisher"
	"github.com/relaymesh/workcoordinator/pkg/streamproc"
	"github.com/relaymesh/workcoordinator/pkg/transport"
	"github.com/relaymesh/workcoordinator/pkg/transport/adapters/memory"
	"github.com/relaymesh/workcoordinator/pkg/unitofwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// appConfig binds this binary's environment-driven settings. There are no
// settings for a per-instance partition cap, a maximum delivery-attempt
// count, or a debug mode.
type appConfig struct {
	ServiceName string `env:"SERVICE_NAME" env-default:"work-coordinator"`

	DatabaseDSN    string `env:"DATABASE_DSN" validate:"required"`
	DatabaseSchema string `env:"DATABASE_SCHEMA" env-default:"coordination"`

	PollingIntervalMS int `env:"POLLING_INTERVAL_MS" env-default:"1000"`
	LeaseSeconds      int `env:"LEASE_SECONDS" env-default:"300"`
	StaleThresholdS   int `env:"STALE_THRESHOLD_SECONDS" env-default:"600"`
	PartitionCount    int `env:"PARTITION_COUNT" env-default:"10000"`
	BatchLimit        int `env:"BATCH_LIMIT" env-default:"100"`

	MaxConcurrentStreams int  `env:"MAX_CONCURRENT_CALLS" env-default:"16"`
	ParallelizeStreams   bool `env:"PARALLELIZE_STREAMS" env-default:"true"`

	// RedisAddr is optional. When set it backs both the dedup fast-path
	// cache and the cross-instance schema-ownership lock; when empty,
	// every instance treats itself as the schema owner and the dedup
	// cache falls back to a process-local in-memory store.
	RedisAddr string `env:"REDIS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"LOG_FORMAT" env-default:"JSON"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		slog.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord, err := coordpg.New(ctx, coordpg.Config{DSN: cfg.DatabaseDSN, Schema: cfg.DatabaseSchema})
	if err != nil {
		log.ErrorContext(ctx, "failed to connect coordination function", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	dlqDB, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.ErrorContext(ctx, "failed to open dead-letter connection", "error", err)
		os.Exit(1)
	}
	dlq := deadletter.New(dlqDB, cfg.DatabaseSchema)

	var cacheBackend cache.Cache
	var locker distlock.Locker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		host, port, splitErr := net.SplitHostPort(cfg.RedisAddr)
		if splitErr != nil {
			host, port = cfg.RedisAddr, "6379"
		}
		redisCache, err := cacheredis.New(cache.Config{Driver: "redis", Host: host, Port: port})
		if err != nil {
			log.WarnContext(ctx, "failed to connect to redis cache, falling back to in-memory", "error", err)
			cacheBackend = cachememory.New()
		} else {
			cacheBackend = redisCache
		}
		locker = distlockredis.New(redisClient, cfg.ServiceName+":lock:")
	} else {
		cacheBackend = cachememory.New()
		locker = distlockmemory.New()
	}
	defer cacheBackend.Close()
	defer locker.Close()

	dedup := dedupcache.New(cache.NewInstrumentedCache(cacheBackend))

	if owned, release, err := instance.AcquireSchemaOwnership(ctx, locker, cfg.ServiceName); err != nil {
		log.WarnContext(ctx, "schema ownership check failed, proceeding without bootstrap exclusivity", "error", err)
	} else if owned {
		log.InfoContext(ctx, "this instance owns schema bootstrap")
		defer release(context.Background())
	}

	m, err := metrics.New()
	if err != nil {
		log.WarnContext(ctx, "failed to build metrics instruments, falling back to no-op", "error", err)
		m = metrics.Noop()
	}

	id := instance.NewIdentity(cfg.ServiceName)
	readiness := instance.NewDatabaseReadinessCheck(coord)

	// The in-memory transport is the default so this binary runs
	// end-to-end without any external broker; operators wire a real
	// backend (kafka, rabbitmq, nats) by swapping this constructor.
	tr := memory.New(memory.Config{BufferSize: 256})
	defer tr.Close()

	uowIdentity := unitofwork.Identity{
		InstanceID:      id.InstanceID,
		ServiceName:     id.ServiceName,
		Host:            id.Host,
		ProcessID:       id.ProcessID,
		LeaseSeconds:    cfg.LeaseSeconds,
		PartitionCount:  cfg.PartitionCount,
		StaleThresholdS: cfg.StaleThresholdS,
		BatchLimit:      cfg.BatchLimit,
	}

	var proc *streamproc.Processor
	proc = streamproc.New(streamproc.Config{
		MaxConcurrentStreams: cfg.MaxConcurrentStreams,
		ParallelizeStreams:   cfg.ParallelizeStreams,
	}, func(ctx context.Context, work coordination.InboxWork) error {
		if dedup.SeenRecently(ctx, work.MessageID) {
			log.InfoContext(ctx, "skipping already-seen inbox message", "message_id", work.MessageID)
			return nil
		}
		log.InfoContext(ctx, "processing inbox work", "message_id", work.MessageID, "handler", work.HandlerName)
		if err := dedup.MarkSeen(ctx, work.MessageID); err != nil {
			log.WarnContext(ctx, "failed to mark inbox message seen", "message_id", work.MessageID, "error", err)
		}
		return nil
	}, func() *unitofwork.Scope {
		return unitofwork.NewScope(coord, nil, uowIdentity, log)
	}, log)

	pubCfg := publisher.Config{
		InstanceID:      id.InstanceID,
		ServiceName:     id.ServiceName,
		Host:            id.Host,
		ProcessID:       id.ProcessID,
		PollingInterval: time.Duration(cfg.PollingIntervalMS) * time.Millisecond,
		LeaseSeconds:    cfg.LeaseSeconds,
		StaleThresholdS: cfg.StaleThresholdS,
		PartitionCount:  cfg.PartitionCount,
		BatchLimit:      cfg.BatchLimit,
	}

	worker := publisher.New(pubCfg, coord, tr, func(work coordination.OutboxWork) transport.Destination {
		return transport.Destination{Address: work.Destination}
	}, readiness, proc, m, log)

	go reportDeadLetters(ctx, dlq, log)

	log.InfoContext(ctx, "worker service starting", "instance", id.String())
	worker.Run(ctx)
	proc.Wait()
	log.InfoContext(ctx, "worker service stopped")
}

// reportDeadLetters periodically logs failure-reason counts from the
// outbox dead-letter view (inbox failures are not counted) so an operator tailing logs can see
// failure trends without a separate query tool.
func reportDeadLetters(ctx context.Context, dlq *deadletter.Reader, log *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := dlq.CountByFailureReason(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to read dead-letter counts", "error", err)
				continue
			}
			if len(counts) > 0 {
				log.InfoContext(ctx, "dead-letter failure counts", "counts", counts)
			}
		}
	}
}
