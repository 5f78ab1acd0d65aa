package di

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/handler/api"
	mid "SignalDesk/internal/middleware"
	internalrepo "SignalDesk/internal/repository"
	"SignalDesk/internal/service/binance"
	"SignalDesk/internal/service/coingecko"
	"SignalDesk/internal/service/identity"
	"SignalDesk/internal/service/jobrunner"
	"SignalDesk/internal/service/kraken"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/server"
)

const feedBuffer = 16

// ProvideLogger builds the root logger. When the error-log collector is
// enabled it publishes through producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(nil)
}

// ProvideCache builds the cache backend selected by cache.type.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	mem := []cache.MemoryOption{
		cache.WithMemoryMaxSize(cfg.Cache.MaxItems),
		cache.WithMemoryCleanup(cfg.Cache.Cleanup),
	}
	if cfg.Cache.Type == "memory" {
		c := cache.NewMemoryCache(mem...)
		return c, func() { _ = c.Close() }, nil
	}

	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Cache.Redis.Host),
		cache.WithRedisPort(cfg.Cache.Redis.Port),
		cache.WithRedisPassword(cfg.Cache.Redis.Password),
		cache.WithRedisDB(cfg.Cache.Redis.DB),
		cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	if cfg.Cache.Type == "layered" {
		lc := cache.NewLayeredCache(rc, cfg.Cache.LatestTTL, mem...)
		return lc, func() { _ = lc.Close() }, nil
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCandleSource returns the configured market data provider.
func ProvideCandleSource(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) domrepo.CandleSource {
	if cfg.Market.Provider == "binance" {
		return binance.New(cfg.Market.BinanceURL, cfg.Market.Timeout, cfg.Market.RatePerSec, cfg.Market.Burst, m, l)
	}
	hc := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Market.Timeout),
		xhttp.WithRateLimit(cfg.Market.RatePerSec, cfg.Market.Burst),
		xhttp.WithRetries(cfg.Market.Retries, cfg.Market.RetryWindow),
	)
	return kraken.New(cfg.Market.KrakenURL, hc, m, l)
}

// ProvideMacroSource creates the CoinGecko client.
func ProvideMacroSource(cfg *config.Config, m domrepo.Metrics, l *applogger.Logger) domrepo.MacroSource {
	hc := xhttp.NewClient(
		xhttp.WithTimeout(cfg.Macro.Timeout),
		xhttp.WithRateLimit(cfg.Market.RatePerSec, cfg.Market.Burst),
		xhttp.WithRetries(cfg.Market.Retries, cfg.Market.RetryWindow),
	)
	return coingecko.New(cfg.Macro.CoinGeckoURL, hc, cfg.Macro.PriceTimeout, m, l)
}

func ProvideMacroContextBuilder(src domrepo.MacroSource, c cache.Service, cfg *config.Config, l *applogger.Logger) *usecase.MacroContextBuilder {
	return usecase.NewMacroContextBuilder(src, c, cfg.Macro.CacheTTL, l)
}

func ProvideSignalEngine(
	candles domrepo.CandleSource,
	macro *usecase.MacroContextBuilder,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.SignalEngine {
	return usecase.NewSignalEngine(candles, macro, m, cfg.Engine.PartialResults, l)
}

// ProvideSignalStore layers the read cache over the file store.
func ProvideSignalStore(cfg *config.Config, c cache.Service, l *applogger.Logger) *internalrepo.CachedSignalStore {
	file := internalrepo.NewFileSignalStore(internalrepo.FileStoreConfig{
		DataDir:     cfg.Store.DataDir,
		LatestFile:  cfg.Store.LatestFile,
		HistoryFile: cfg.Store.HistoryFile,
		ScanLimit:   cfg.Store.ScanLimit,
	}, l)
	return internalrepo.NewCachedSignalStore(file, c, cfg.Cache.LatestTTL, l)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when neither kafka
// export nor the log collector needs one.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if cfg.Export.Backend != "kafka" && !cfg.Log.Collector.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.Producer.AutoCreate),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideClickHouseClient connects and creates the archive table, or returns
// nil when neither clickhouse export nor the archive consumer is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Export.Backend != "clickhouse" && !cfg.Export.Consume {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SignalHistorySchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideSignalExporter selects the export backend. A disabled exporter
// is returned when export.backend is empty.
func ProvideSignalExporter(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client, m domrepo.Metrics) *usecase.SignalExporter {
	var exp domrepo.SignalExporter
	switch {
	case cfg.Export.Backend == "kafka" && producer != nil:
		exp = internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.Topic)
	case cfg.Export.Backend == "clickhouse" && ch != nil:
		exp = internalrepo.NewClickHouseSignalArchive(ch)
	}
	return usecase.NewSignalExporter(exp, m, cfg.Export.Backend)
}

// ProvideExportPipeline puts validation and retry buffering in front of
// the exporter. It is nil when export is disabled.
func ProvideExportPipeline(exporter *usecase.SignalExporter, m domrepo.Metrics, cfg *config.Config, l *applogger.Logger) *mid.ExportPipeline {
	if !exporter.Enabled() {
		return nil
	}
	return mid.NewExportPipeline(exporter, m,
		mid.WithBufferSize(cfg.Export.BufferSize),
		mid.WithRetryBackoff(cfg.Export.RetryMin, cfg.Export.RetryMax),
		mid.WithPipelineLogger(l),
	)
}

func ProvideSignalFeed() *usecase.SignalFeed {
	return usecase.NewSignalFeed(feedBuffer)
}

func ProvideSignalService(
	engine *usecase.SignalEngine,
	store *internalrepo.CachedSignalStore,
	macro *usecase.MacroContextBuilder,
	pipeline *mid.ExportPipeline,
	feed *usecase.SignalFeed,
	l *applogger.Logger,
) *usecase.SignalService {
	var exporter usecase.RecordExporter
	if pipeline != nil {
		exporter = pipeline
	}
	return usecase.NewSignalService(engine, store, macro, exporter, feed, l)
}

func ProvideJobRunner(cfg *config.Config) domrepo.JobRunner {
	return jobrunner.New(cfg.Refresh.Command,
		jobrunner.WithWorkDir(cfg.Refresh.WorkDir),
		jobrunner.WithTimeout(cfg.Refresh.Timeout),
		// the job writes where this process reads
		jobrunner.WithEnv("SIGNALDESK_DATA_DIR="+cfg.Store.DataDir),
	)
}

// ProvideRefreshCoordinator creates the coordinator. Each finished job
// invalidates the snapshot cache and re-broadcasts the stored snapshot.
func ProvideRefreshCoordinator(
	runner domrepo.JobRunner,
	store *internalrepo.CachedSignalStore,
	svc *usecase.SignalService,
	m domrepo.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.RefreshCoordinator {
	rc := usecase.NewRefreshCoordinator(runner, cfg.Refresh.MessageLimit, m, l)
	log := l.Component("refresh_hook")
	rc.OnComplete(func(ctx context.Context, st models.RefreshRunState) {
		store.Invalidate(ctx)
		if err := svc.Rebroadcast(ctx); err != nil {
			log.Warn("rebroadcast after refresh failed",
				applogger.String("run_id", st.RunID),
				applogger.Error(err),
			)
		}
	})
	return rc
}

// ProvidePermissionDirectory opens the user/group/permission database and
// creates missing tables.
func ProvidePermissionDirectory(cfg *config.Config) (*internalrepo.SQLPermissionDirectory, func(), error) {
	dir, err := internalrepo.OpenPermissionDirectory(cfg.Auth.Directory.Driver, cfg.Auth.Directory.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("permission directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dir.InitSchema(ctx); err != nil {
		_ = dir.Close()
		return nil, nil, fmt.Errorf("permission directory: %w", err)
	}
	return dir, func() { _ = dir.Close() }, nil
}

func ProvideSessionResolver(cfg *config.Config) *identity.Resolver {
	return identity.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
}

func ProvideAccessGate(res *identity.Resolver, dir *internalrepo.SQLPermissionDirectory, cfg *config.Config, l *applogger.Logger) *usecase.AccessGate {
	return usecase.NewAccessGate(res, dir, cfg.Auth.ModuleAliases, l)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RunRatePerMin, cfg.Server.RunRatePerMin)
}

// ProvideTradeJournal reads trade and backtest files from the store directory.
func ProvideTradeJournal(cfg *config.Config, l *applogger.Logger) *internalrepo.FileTradeJournal {
	return internalrepo.NewFileTradeJournal(internalrepo.TradeJournalConfig{
		DataDir:         cfg.Store.DataDir,
		TradeFile:       cfg.Store.TradeFile,
		BacktestSummary: cfg.Store.BacktestSummary,
		ScanLimit:       cfg.Store.ScanLimit,
	}, l)
}

func ProvideHTTPHandler(
	svc *usecase.SignalService,
	rc *usecase.RefreshCoordinator,
	trades *internalrepo.FileTradeJournal,
	gate *usecase.AccessGate,
	lim *ratelimit.Limiter,
	cfg *config.Config,
	l *applogger.Logger,
) xhttp.Handler {
	return api.NewCryptoMiddlewareHandler(l, svc, rc, trades, gate, lim, cfg.Auth.CookieName).
		AllowStreamOrigins(cfg.Server.AllowOrigins)
}

// ProvideKafkaConsumer creates the archive consumer, or nil unless
// export.consume is set.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Export.Consume {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.Offset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaSignalsHandler archives consumed records into ClickHouse.
func ProvideKafkaSignalsHandler(cfg *config.Config, ch *pkgch.Client, m domrepo.Metrics) *usecase.KafkaSignalsHandler {
	if ch == nil {
		return nil
	}
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.Topic, internalrepo.NewClickHouseSignalArchive(ch), m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSignalsHandler,
	pipeline *mid.ExportPipeline,
	feed *usecase.SignalFeed,
) *server.App {
	var msgHandler pkgkafka.MessageHandler
	if kh != nil {
		msgHandler = kh
	}
	if consumer != nil {
		consumer.WithConsumerHook(usecase.EventIDHook())
	}
	app := server.New(cfg, l, handler, consumer, msgHandler)
	if pipeline != nil {
		app.AddBackground(pipeline)
	}
	app.AddCloser(feed)
	return app
}

// ProvideGeneratorService builds the service for one-shot runs. It exports
// synchronously since no flush loop outlives the process, and has no feed.
func ProvideGeneratorService(
	engine *usecase.SignalEngine,
	store *internalrepo.CachedSignalStore,
	macro *usecase.MacroContextBuilder,
	exporter *usecase.SignalExporter,
	l *applogger.Logger,
) *usecase.SignalService {
	var rec usecase.RecordExporter
	if exporter.Enabled() {
		rec = exporter
	}
	return usecase.NewSignalService(engine, store, macro, rec, nil, l)
}
