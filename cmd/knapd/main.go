package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/knapping/internal/api"
	"github.com/annel0/knapping/internal/config"
	"github.com/annel0/knapping/internal/eventbus"
	"github.com/annel0/knapping/internal/knapping"
	"github.com/annel0/knapping/internal/logging"
	"github.com/annel0/knapping/internal/observability"
	"github.com/annel0/knapping/internal/session"
	"github.com/annel0/knapping/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Путь к YAML конфигурации (или KNAP_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := logging.NewLogger("knapd")
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	level := logging.ParseLevel(cfg.Logging.Level)
	logger.SetLevels(level, logging.DEBUG)
	logging.SetDefaultLogger(logger)
	defer logging.CloseDefaultLogger()

	// Логгер HTTP запросов пишет в отдельный файл
	logging.GetAPILogger()
	if err := logging.GetLoggerManager().SetLogLevel("api", level, logging.DEBUG); err != nil {
		log.Printf("⚠️ %v", err)
	}
	defer logging.GetLoggerManager().CloseAll()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.GetLoggerManager().CloseAll()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logging.Info("🪨 Запуск сервера обработки камня...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА ===
	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		return fmt.Errorf("ошибка инициализации OpenTelemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	mode, err := cfg.Knapping.EngineMode()
	if err != nil {
		return err
	}

	// === ШАБЛОНЫ ===
	patterns := knapping.NewPatternStore()
	if cfg.Knapping.PatternsFile != "" {
		n, err := config.LoadPatterns(cfg.Knapping.PatternsFile, patterns)
		if err != nil {
			return err
		}
		logging.Info("📐 Загружено шаблонов: %d", n)
	}

	// === ХРАНИЛИЩА ===
	snapshots, err := storage.NewSurfaceStorage(cfg.Storage.DataPath)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	ledgerRepo := openLedgerRepo(ctx, cfg.Storage)
	defer ledgerRepo.Close()

	history := openCompletionRepo(cfg.Storage.Maria)
	defer history.Close()

	// === ШИНА СОБЫТИЙ ===
	bus := openEventBus(cfg.EventBus)
	defer bus.Close()
	eventbus.Init(bus)
	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		return fmt.Errorf("ошибка подписки логгера событий: %w", err)
	}

	// === МЕТРИКИ ===
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter := eventbus.NewMetricsExporter(bus, registry)
	exporter.Start()
	defer exporter.Stop()

	// === СЕССИИ ===
	manager, err := session.NewManager(session.Options{
		Config:      cfg.Knapping.EngineConfig(),
		Mode:        mode,
		Seed:        cfg.Knapping.Seed,
		Source:      cfg.Telemetry.ServiceName,
		Patterns:    patterns,
		LedgerRepo:  ledgerRepo,
		Snapshots:   snapshots,
		Completions: history,
		Bus:         bus,
		Metrics:     session.NewMetrics(registry),
	})
	if err != nil {
		return err
	}
	restoreSessions(ctx, manager, snapshots)

	webhooks := api.NewWebhookManager()
	if err := webhooks.Attach(ctx, bus); err != nil {
		return err
	}
	defer webhooks.Close()

	restServer := api.NewRestServer(api.Config{
		Port:     fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		Sessions: manager,
		Patterns: patterns,
		History:  history,
		Webhooks: webhooks,
		Registry: registry,
		Logger:   logging.GetAPILogger(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(restServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("🛑 Остановка сервера...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		return restServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("ошибка REST API: %w", err)
	}
	logging.Info("👋 Сервер остановлен")
	return nil
}

// openLedgerRepo подключает Redis, при недоступности журнал остаётся в памяти
func openLedgerRepo(ctx context.Context, cfg config.StorageConfig) storage.LedgerRepo {
	if cfg.RedisAddr == "" {
		logging.Info("💾 Журнал ошибок хранится в памяти")
		return storage.NewMemoryLedgerRepo()
	}

	redisCfg := storage.DefaultRedisConfig()
	redisCfg.Addr = cfg.RedisAddr
	redisCfg.DB = cfg.RedisDB
	redisCfg.TTL = cfg.LedgerTTL()

	repo, err := storage.NewRedisLedgerRepo(ctx, redisCfg)
	if err != nil {
		logging.Warn("⚠️ Redis недоступен (%v), журнал ошибок хранится в памяти", err)
		return storage.NewMemoryLedgerRepo()
	}
	return repo
}

// openCompletionRepo подключает MariaDB, если она включена
func openCompletionRepo(cfg config.MariaConfig) storage.CompletionRepo {
	if !cfg.Enabled {
		return storage.NewMemoryCompletionRepo()
	}

	repo, err := storage.NewMariaCompletionRepo(storage.MariaConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		logging.Warn("⚠️ MariaDB недоступна (%v), история хранится в памяти", err)
		return storage.NewMemoryCompletionRepo()
	}
	logging.Info("🗄️ История завершений в MariaDB %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return repo
}

// openEventBus подключает JetStream, без URL используется шина в памяти
func openEventBus(cfg config.EventBusConfig) eventbus.EventBus {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer)
	}

	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		logging.Warn("⚠️ NATS недоступен (%v), события идут через шину в памяти", err)
		return eventbus.NewMemoryBus(cfg.Buffer)
	}
	logging.Info("📨 События публикуются в JetStream %s (%s)", cfg.URL, cfg.Stream)
	return bus
}

// restoreSessions поднимает незавершённые заготовки из снимков
func restoreSessions(ctx context.Context, manager *session.Manager, snapshots *storage.SurfaceStorage) {
	ids, err := snapshots.ListSnapshotIDs()
	if err != nil {
		logging.Warn("⚠️ Не удалось прочитать снимки: %v", err)
		return
	}

	restored := 0
	for _, id := range ids {
		if _, err := manager.Restore(ctx, knapping.SurfaceID(id)); err != nil {
			logging.Warn("⚠️ Не удалось восстановить %s: %v", id, err)
			continue
		}
		restored++
	}
	if restored > 0 {
		logging.Info("♻️ Восстановлено сессий: %d", restored)
	}
}
