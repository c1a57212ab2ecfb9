package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"TriggerDesk/internal/domain/models"
	domrepo "TriggerDesk/internal/domain/repository"
	"TriggerDesk/internal/handler/api"
	mid "TriggerDesk/internal/middleware"
	internalrepo "TriggerDesk/internal/repository"
	svccache "TriggerDesk/internal/service/cache"
	"TriggerDesk/internal/service/clock"
	"TriggerDesk/internal/service/levels"
	svcmetrics "TriggerDesk/internal/service/metrics"
	"TriggerDesk/internal/service/notify"
	"TriggerDesk/internal/service/polygon"
	"TriggerDesk/internal/service/ratelimit"
	"TriggerDesk/internal/service/risk"
	"TriggerDesk/internal/service/sections"
	"TriggerDesk/internal/service/upstream"
	"TriggerDesk/internal/services/alert"
	"TriggerDesk/internal/services/reaction"
	"TriggerDesk/internal/services/replay"
	"TriggerDesk/internal/services/trigger"
	"TriggerDesk/internal/usecase"
	"TriggerDesk/pkg/cache"
	pkgch "TriggerDesk/pkg/clickhouse"
	"TriggerDesk/pkg/config"
	xhttp "TriggerDesk/pkg/http"
	pkgkafka "TriggerDesk/pkg/kafka"
	applogger "TriggerDesk/pkg/logger"
	"TriggerDesk/pkg/metrics"
	"TriggerDesk/pkg/queue"
	"TriggerDesk/pkg/server"
)

func noop() {}

// ProvideLogger builds the root logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

func ProvideUpstreamMetrics() *svcmetrics.Upstream {
	return svcmetrics.NewUpstream(prometheus.DefaultRegisterer)
}

// ProvideClock is the one time source handed to every time-dependent component.
func ProvideClock() clock.Clock {
	return clock.System()
}

func ProvideLimiter(c clock.Clock) *ratelimit.Limiter {
	return ratelimit.NewWithClock(clock.Func(c))
}

// ProvideRedis connects to Redis when enabled. A nil client means memory caches.
func ProvideRedis(cfg *config.Config, log *applogger.Logger) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, noop, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("redis connected", applogger.String("addr", cfg.Redis.Addr))
	return rc, func() {
		if err := rc.Close(); err != nil {
			log.Warn("redis close error", applogger.Error(err))
		}
	}, nil
}

// ProvideCache is the typed cache for bars and the alert ledger.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc,
		cache.WithLocalTTL(cfg.Redis.LocalTTL),
		cache.WithLocalSize(cfg.Redis.LocalSize),
	)
}

// ProvideBytesCache is the response body cache of the upstream adapters.
func ProvideBytesCache(svc cache.Service) svccache.BytesCache {
	return svccache.NewBodies(svc)
}

// ProvideClickHouseClient creates a ClickHouse client and applies the archive schema.
func ProvideClickHouseClient(cfg *config.Config, log *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, noop, nil
	}
	ch := cfg.ClickHouse
	client, err := pkgch.NewClient(
		pkgch.WithAddr(ch.Host, ch.Port),
		pkgch.WithAuth(ch.Database, ch.User, ch.Password),
		pkgch.WithPool(10, 5, 5*time.Minute),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithAsyncInsert(ch.AsyncInsert, ch.WaitForAsync),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		pkgch.WithMaxExecutionTime(ch.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Exec(ctx, internalrepo.Schema(ch.Database)...); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	log.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, func() {
		if err := client.Close(); err != nil {
			log.Warn("clickhouse close error", applogger.Error(err))
		}
	}, nil
}

func ProvideBarArchive(ch *pkgch.Client, cfg *config.Config, log *applogger.Logger) (domrepo.BarArchive, error) {
	if ch == nil {
		return nil, nil
	}
	return internalrepo.NewCHBarArchive(ch, cfg.ClickHouse.Database, log)
}

func ProvideGoArchive(ch *pkgch.Client, cfg *config.Config) (domrepo.GoArchive, error) {
	if ch == nil {
		return nil, nil
	}
	return internalrepo.NewCHGoArchive(ch, cfg.ClickHouse.Database)
}

// ProvideKafkaProducer creates a Kafka producer. Aggregated error logs ride on it
// when log.collect_topic is set.
func ProvideKafkaProducer(cfg *config.Config, m domrepo.Metrics, log *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, noop, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(m),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.CollectTopic != "" {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectMax,
			Topic:          cfg.Log.CollectTopic,
			Publisher:      producer,
		})
	}
	return producer, func() {
		log.RemoveCollector()
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", applogger.Error(err))
		}
	}, nil
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.GoTopic, cfg.Kafka.EventsTopic)
}

func sourceBase(name, baseURL string, cfg *config.Config, bc svccache.BytesCache, um *svcmetrics.Upstream) *upstream.Base {
	return upstream.NewBase(name, baseURL,
		upstream.WithTimeout(cfg.Sources.Timeout),
		upstream.WithAttempts(2),
		upstream.WithCache(bc, cfg.Sources.CacheTTL),
		upstream.WithMetrics(um),
	)
}

func ProvideZoneSource(cfg *config.Config, bc svccache.BytesCache, um *svcmetrics.Upstream, log *applogger.Logger) domrepo.ZoneSource {
	return levels.NewSource(
		sourceBase("levels", cfg.Sources.LevelsURL, cfg, bc, um),
		sourceBase("shelves", cfg.Sources.ShelvesURL, cfg, bc, um),
		log,
	)
}

// ProvideRiskSource is uncached: the kill switch must be read fresh.
func ProvideRiskSource(cfg *config.Config, um *svcmetrics.Upstream) domrepo.RiskSource {
	return risk.NewSource(upstream.NewBase("risk", cfg.Sources.RiskURL,
		upstream.WithTimeout(cfg.Sources.Timeout),
		upstream.WithMetrics(um),
	))
}

func ProvideContextSource(cfg *config.Config, bc svccache.BytesCache, um *svcmetrics.Upstream) domrepo.ContextSource {
	return sections.NewSource(sourceBase("context", cfg.Sources.ContextURL, cfg, bc, um))
}

func ProvideBarProvider(cfg *config.Config, c clock.Clock, lim *ratelimit.Limiter, um *svcmetrics.Upstream) domrepo.BarProvider {
	p := cfg.Market.Polygon
	return polygon.NewREST(p.RESTURL, p.APIKey, clock.Func(c),
		upstream.WithTimeout(p.Timeout),
		upstream.WithAttempts(p.Retries),
		upstream.WithRateLimit(lim, float64(p.RPS)),
		upstream.WithMetrics(um),
	)
}

func ProvideBarStore(provider domrepo.BarProvider, archive domrepo.BarArchive, c cache.Service, clk clock.Clock, m domrepo.Metrics, cfg *config.Config, log *applogger.Logger) *usecase.BarStore {
	return usecase.NewBarStore(provider, log,
		usecase.WithBarArchive(archive),
		usecase.WithBarCache(c, cfg.Market.BarCacheTTL),
		usecase.WithBarClock(clock.Func(clk)),
		usecase.WithSession(models.Session(cfg.Market.Session)),
		usecase.WithBarMetrics(m),
	)
}

func ProvideZonesService(src domrepo.ZoneSource, bars *usecase.BarStore, c clock.Clock, cfg *config.Config, log *applogger.Logger) *usecase.ZonesService {
	return usecase.NewZonesService(src, bars, cfg.Zones.Policy, cfg.Zones.WindowPts, clock.Func(c), log)
}

func ProvideReactionService(bars *usecase.BarStore, zs *usecase.ZonesService, cfg *config.Config, log *applogger.Logger) *usecase.ReactionService {
	return usecase.NewReactionService(bars, zs, cfg.Engine.BreakDepthATR, log)
}

func ProvideVolumeService(bars *usecase.BarStore, log *applogger.Logger) *usecase.VolumeService {
	return usecase.NewVolumeService(bars, log)
}

// ProvideNotifier returns the webhook. With Redis, deliveries go through a retrying queue.
func ProvideNotifier(cfg *config.Config, rc *cache.RedisCache, log *applogger.Logger) (domrepo.Notifier, func(), error) {
	hook := notify.NewWebhook(cfg.Alert.WebhookURL, cfg.Alert.Enabled, cfg.Alert.Timeout)
	if rc == nil || !hook.IsEnabled() {
		return hook, noop, nil
	}
	q := queue.NewRedisQueue(rc.Client(), queue.Config{Workers: 1, RetryLimit: 3, RetryDelay: 10 * time.Second}, log,
		queue.WithKeyPrefix(cfg.Redis.Prefix+":alerts"))
	q.Register(notify.NewDeliveryJob(hook))
	if err := q.Start(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("alert queue: %w", err)
	}
	return notify.NewQueued(q, hook), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.Stop(ctx); err != nil {
			log.Warn("alert queue stop error", applogger.Error(err))
		}
	}, nil
}

func ProvideAlertEmitter(n domrepo.Notifier, c cache.Service, clk clock.Clock, m domrepo.Metrics, cfg *config.Config, log *applogger.Logger) *alert.Emitter {
	return alert.NewEmitter(n, alert.NewCacheLedger(c, 24*time.Hour),
		alert.WithEnabled(cfg.Alert.Enabled),
		alert.WithClock(clock.Func(clk)),
		alert.WithMinInterval(cfg.Alert.MinInterval),
		alert.WithLogger(log),
		alert.WithMetrics(m),
	)
}

func ProvideReplayService(cfg *config.Config, src domrepo.ContextSource, goArchive domrepo.GoArchive, pub domrepo.EventPublisher, bars *usecase.BarStore, rc *cache.RedisCache, c clock.Clock, m domrepo.Metrics, log *applogger.Logger) *usecase.ReplayService {
	w := replay.NewWriter(cfg.Replay.DataDir,
		replay.WithClock(clock.Func(c)),
		replay.WithMinGoInterval(cfg.Replay.MinGoInterval),
		replay.WithLogger(log),
		replay.WithMetrics(m),
	)
	opts := []usecase.ReplayOption{
		usecase.WithReplayPublisher(pub),
		usecase.WithReplayPrices(bars),
		usecase.WithReplayClock(clock.Func(c)),
		usecase.WithCadenceSymbol(cfg.CadenceSymbol()),
	}
	if goArchive != nil {
		opts = append(opts, usecase.WithGoArchive(goArchive))
	}
	if rc != nil {
		opts = append(opts, usecase.WithCadenceClaims(rc))
	}
	return usecase.NewReplayService(w, replay.NewReader(cfg.Replay.DataDir), src, log, opts...)
}

// ProvideMarketStream is nil unless ticks come from the Polygon websocket.
func ProvideMarketStream(cfg *config.Config, log *applogger.Logger) domrepo.MarketStream {
	if cfg.Market.TickSource != "polygon" {
		return nil
	}
	p := cfg.Market.Polygon
	return polygon.NewStream(p.APIKey, p.WebSocketURL, cfg.Market.Symbols, p.ReconnectDelay, p.PingInterval, log)
}

func machineConfig(cfg *config.Config) trigger.Config {
	mc := trigger.DefaultConfig()
	e := cfg.Engine
	mc.PersistBars = e.PersistBars
	mc.BreakoutPts = e.BreakoutPts
	mc.Cooldown = e.Cooldown
	mc.ArmedWindow = e.ArmedWindow
	mc.GoHold = e.GoHold
	mc.ImpulseRangePts = e.ImpulseRangePts
	mc.PullbackWickPts = e.PullbackWickPts
	mc.PullbackMaxMinutes = e.PullbackMaxMinutes
	mc.AllowShorts = e.AllowShorts
	mc.ExecutionEnabled = e.ExecutionEnabled
	return mc
}

// ProvideEngines builds one live engine per configured symbol.
func ProvideEngines(
	cfg *config.Config,
	zs *usecase.ZonesService,
	reactions *usecase.ReactionService,
	volumes *usecase.VolumeService,
	riskSrc domrepo.RiskSource,
	emitter *alert.Emitter,
	rs *usecase.ReplayService,
	pub domrepo.EventPublisher,
	bars *usecase.BarStore,
	stream domrepo.MarketStream,
	c clock.Clock,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.EngineSet {
	e := cfg.Engine
	engines := make([]*usecase.LiveEngine, 0, len(cfg.Market.Symbols))
	for _, sym := range cfg.Market.Symbols {
		opts := []usecase.LiveOption{
			usecase.WithRiskSource(riskSrc),
			usecase.WithAlerter(emitter),
			usecase.WithPublisher(pub),
			usecase.WithBarRecorder(bars),
			usecase.WithLiveMetrics(m),
			usecase.WithLiveClock(clock.Func(c)),
		}
		if cfg.Replay.Enabled {
			opts = append(opts, usecase.WithGoRecorder(rs))
		}
		if stream != nil {
			opts = append(opts, usecase.WithConnectivity(stream.IsConnected))
		}
		engines = append(engines, usecase.NewLiveEngine(usecase.LiveConfig{
			Symbol:      sym,
			StrategyID:  e.StrategyID,
			E3Mode:      reaction.ParseMode(e.E3Mode, e.StrategyID),
			Timeframe:   models.Timeframe(e.E3Timeframe),
			E4Mode:      e.E4Mode,
			ZoneRefresh: e.ZoneRefresh,
			RiskRefresh: e.RiskRefresh,
			E3Interval:  e.E3Interval,
			E4Refresh:   e.E4Refresh,
			Rollup:      models.Timeframe(e.RollupTimeframe),
			Session:     models.Session(cfg.Market.Session),
			Machine:     machineConfig(cfg),
		}, zs, reactions, volumes, log, opts...))
	}
	return usecase.NewEngineSet(log, engines...)
}

func ProvideTickPipeline(engines *usecase.EngineSet, c clock.Clock, m domrepo.Metrics, cfg *config.Config) *mid.TickPipeline {
	return mid.NewTickPipeline(engines, m,
		mid.WithSymbols(cfg.Market.Symbols),
		mid.WithBufferSize(2000),
		mid.WithPipelineClock(c.Now),
	)
}

// ProvideTickCollector is nil when ticks come from Kafka.
func ProvideTickCollector(stream domrepo.MarketStream, pipe *mid.TickPipeline, bars *usecase.BarStore, m domrepo.Metrics, log *applogger.Logger) *usecase.TickCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewTickCollector(stream, pipe, bars, m, log)
}

// ProvideKafkaConsumer creates the tick consumer when tick_source is kafka.
func ProvideKafkaConsumer(cfg *config.Config, clk clock.Clock, m domrepo.Metrics, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Market.TickSource != "kafka" {
		return nil, nil
	}
	cc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerStartOffset(cc.StartOffset),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerMetrics(m),
		pkgkafka.WithConsumerHook(tickHook(cc.MaxAge, clk, log)),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// tickHook drops ticks older than maxAge and logs failures with the
// producer's trace id.
func tickHook(maxAge time.Duration, clk clock.Clock, log *applogger.Logger) pkgkafka.Hook {
	logFailures := pkgkafka.HookFuncs{AfterFunc: func(ctx context.Context, km kafka.Message, err error, _ time.Duration) {
		if err != nil {
			log.Debug("tick message failed", applogger.Int64("offset", km.Offset), applogger.String("trace_id", pkgkafka.TraceID(ctx)), applogger.Error(err))
		}
	}}
	return pkgkafka.Chain(pkgkafka.TraceHeader(), pkgkafka.MaxAge(maxAge, clock.Func(clk)), logFailures)
}

func ProvideKafkaTicksHandler(cfg *config.Config, pipe *mid.TickPipeline, m domrepo.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipe, m)
}

// ProvideHTTPHandler mounts every API group on one router.
func dependencyProbes(rc *cache.RedisCache, ch *pkgch.Client) []api.Probe {
	var probes []api.Probe
	if rc != nil {
		probes = append(probes, api.Probe{Name: "redis", Check: func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}})
	}
	if ch != nil {
		probes = append(probes, api.Probe{Name: "clickhouse", Check: ch.Ping})
	}
	return probes
}

func ProvideHTTPHandler(
	cfg *config.Config,
	zs *usecase.ZonesService,
	reactions *usecase.ReactionService,
	volumes *usecase.VolumeService,
	engines *usecase.EngineSet,
	rs *usecase.ReplayService,
	rc *cache.RedisCache,
	ch *pkgch.Client,
	log *applogger.Logger,
) xhttp.Handler {
	views := make([]api.LiveView, 0, len(engines.Engines()))
	for _, e := range engines.Engines() {
		views = append(views, e)
	}
	return api.NewRouter(
		api.NewEnginesHandler(log, zs, reactions, volumes, cfg.Engine.StrategyID),
		api.NewLiveHandler(log, cfg.Engine.SSEInterval, cfg.Engine.Heartbeat, views...),
		api.NewHealthHandler(views...).WithProbes(dependencyProbes(rc, ch)...),
		api.NewReplayHandler(log, rs),
	)
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, log *applogger.Logger) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRequestTimeout(cfg.Server.RequestTimeout, "/live/events"),
		xhttp.WithCORS(cfg.Server.CORSOrigins...),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	return xhttp.NewServer(h, log, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	engines *usecase.EngineSet,
	pipe *mid.TickPipeline,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	rs *usecase.ReplayService,
	srv *xhttp.Server,
) *server.App {
	c := server.Components{
		Engines:   engines,
		Pipeline:  pipe,
		Collector: collector,
		Replay:    rs,
		HTTP:      srv,
	}
	if consumer != nil {
		c.Consumer, c.Ticks = consumer, kh
	}
	return server.New(cfg, log, c)
}
