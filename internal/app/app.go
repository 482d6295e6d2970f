package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/assignment"
	"github.com/Ramsey-B/clover/pkg/automation"
	"github.com/Ramsey-B/clover/pkg/clock"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/expressions"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/repositories/memory"
	"github.com/Ramsey-B/clover/pkg/sweeper"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
	"github.com/Ramsey-B/clover/pkg/waterfall"
)

// App owns every long-lived collaborator of a clover process.
type App struct {
	Config       *config.Config
	Logger       ectologger.Logger
	Repositories Repositories
	// Memory is set when the process runs on the in-memory store.
	Memory *memory.Store

	Locker     lock.Locker
	Waterfalls *waterfall.Engine
	Assignment *assignment.DecisionMaker
	Automation *automation.Engine
	Rules      *automation.Service
	Sweeper    *sweeper.Sweeper
	Health     *health.Checker
	Producer   *kafka.Producer

	db             database.DB
	redis          *redis.Client
	tracerShutdown func(context.Context) error
}

// Option adjusts collaborators before the engines are built.
type Option func(*options)

type options struct {
	clock  clock.Clock
	roller automation.Roller
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRoller replaces the partial-stage roller.
func WithRoller(r automation.Roller) Option {
	return func(o *options) { o.roller = r }
}

// New connects storage, locks and the Kafka producer and builds the engines.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger ectologger.Logger, opts ...Option) (*App, error) {
	o := &options{clock: clock.Real{}, roller: automation.RandomRoller{}}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: logger, Health: health.NewChecker(cfg.Version)}

	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TraceExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		},
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.tracerShutdown = shutdown

	if err := a.connectStorage(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.connectLocker(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}

	var notifier waterfall.Notifier = waterfall.NopNotifier{}
	var dispatcher automation.Dispatcher = logDispatcher{logger: logger}
	if brokers := kafka.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		producer, err := kafka.NewProducer(a.producerConfig(brokers), logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.Producer = producer
		notifier = producer
		dispatcher = producer
	}

	a.build(notifier, dispatcher, o)
	return a, nil
}

func (a *App) connectStorage(ctx context.Context) error {
	if a.Config.UsesMemoryStorage() {
		a.Memory = memory.NewStore()
		a.Repositories = memoryRepositories(a.Memory)
		a.Logger.WithContext(ctx).Warn("Using in-memory storage, state is lost on exit")
		return nil
	}

	db, err := connectDatabase(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.db = db
	a.Health.AddCheck("database", health.PingFunc(db.PingContext))

	if a.Config.DatabaseAutoMigrate {
		if err := Migrate(db, a.Config, a.Logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	a.Repositories = postgresRepositories(db, a.Logger)
	return nil
}

func (a *App) connectLocker(ctx context.Context) error {
	if a.Config.RedisHost == "" {
		a.Locker = lock.NewLocal()
		a.Logger.WithContext(ctx).Info("No redis host configured, using in-process locks")
		return nil
	}

	client, err := redis.Connect(ctx, redis.Config{
		Host:     a.Config.RedisHost,
		Port:     a.Config.RedisPort,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.redis = client
	a.Locker = redis.NewLocker(client, a.Config.RedisLockPrefix)
	a.Health.AddCheck("redis", health.PingFunc(client.Ping))
	return nil
}

func (a *App) topics() kafka.Topics {
	return kafka.Topics{
		Tenders:       a.Config.KafkaTenderTopic,
		Events:        a.Config.KafkaEventTopic,
		Notifications: a.Config.KafkaNotificationTopic,
		Responses:     a.Config.KafkaResponseTopic,
	}
}

func (a *App) producerConfig(brokers []string) kafka.ProducerConfig {
	cfg := kafka.DefaultProducerConfig()
	cfg.Brokers = brokers
	cfg.Topics = a.topics()
	cfg.Compression = a.Config.KafkaCompression
	return cfg
}

// ConsumerConfig is the consumer group reading responses and lifecycle events.
func (a *App) ConsumerConfig() kafka.ConsumerConfig {
	topics := a.topics()
	cfg := kafka.DefaultConsumerConfig()
	cfg.Brokers = kafka.ParseBrokers(a.Config.KafkaBrokers)
	cfg.Topics = []string{topics.Responses, topics.Events}
	cfg.GroupID = a.Config.KafkaConsumerGroup
	return cfg
}

func (a *App) build(notifier waterfall.Notifier, dispatcher automation.Dispatcher, o *options) {
	repos := a.Repositories

	a.Waterfalls = waterfall.NewEngine(waterfall.Deps{
		Shipments:  repos.Shipments,
		Tenders:    repos.Tenders,
		Waterfalls: repos.Waterfalls,
		WorkItems:  repos.WorkItems,
		Notifier:   notifier,
		Locker:     a.Locker,
		Clock:      o.clock,
		Logger:     a.Logger,
	}, waterfall.Options{
		LockTTL:          a.Config.ShipmentLockTTL,
		LockWait:         a.Config.ShipmentLockWait,
		ExpiredBatchSize: a.Config.ExpiredTendersBatchSize,
	})

	a.Assignment = assignment.NewDecisionMaker(assignment.Deps{
		Shipments: repos.Shipments,
		Carriers:  repos.Carriers,
		Rules:     repos.AssignmentRules,
		Config:    repos.AutoAssignConfig,
		Matcher:   assignment.NewHeuristicMatcher(repos.Carriers, a.Logger),
		Tenderer:  a.Waterfalls,
		Clock:     o.clock,
		Logger:    a.Logger,
	}, assignment.Options{
		BatchSize:  a.Config.NewShipmentsBatchSize,
		MatchLimit: a.Config.MatcherCandidateLimit,
	})

	template := expressions.NewTemplate(expressions.NewEvaluator())
	executor := automation.NewActionExecutor(automation.ExecutorDeps{
		Shipments:  repos.Shipments,
		Carriers:   repos.Carriers,
		WorkItems:  repos.WorkItems,
		Assigner:   a.Assignment,
		Tenderer:   a.Waterfalls,
		Dispatcher: dispatcher,
		Template:   template,
		Clock:      o.clock,
		Logger:     a.Logger,
	})
	a.Automation = automation.NewEngine(automation.Deps{
		Rules:    repos.AutomationRules,
		Loader:   automation.NewEntityLoader(repos.Shipments, repos.Carriers, repos.Tenders, repos.Waterfalls),
		Executor: executor,
		Roller:   o.roller,
		Clock:    o.clock,
		Logger:   a.Logger,
	}, automation.Options{ShadowLogLimit: a.Config.AutomationShadowLogLimit})
	a.Rules = automation.NewService(repos.AutomationRules, template, a.Logger)

	a.Sweeper = sweeper.New(a.Locker, sweeper.Config{LockTTL: a.Config.SweepLockTTL}, a.Logger,
		sweeper.ExpiredTendersTask(a.Waterfalls, a.Config.SweepExpiredTendersInterval),
		sweeper.NewShipmentsTask(a.Assignment, a.Config.SweepNewShipmentsInterval),
	)
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	log := a.Logger.WithContext(ctx)
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			log.WithError(err).Error("Failed to close kafka producer")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Error("Failed to close redis client")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.WithError(err).Error("Failed to close database")
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			log.WithError(err).Error("Failed to shut down tracer provider")
		}
	}
}
