package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teusbenschop/cryptobot-sub002/internal/bot"
	"github.com/teusbenschop/cryptobot-sub002/internal/config"
	"github.com/teusbenschop/cryptobot-sub002/internal/exchange"
	"github.com/teusbenschop/cryptobot-sub002/internal/models"
	"github.com/teusbenschop/cryptobot-sub002/internal/repository"
	"github.com/teusbenschop/cryptobot-sub002/internal/web"
	"github.com/teusbenschop/cryptobot-sub002/internal/websocket"
	"github.com/teusbenschop/cryptobot-sub002/pkg/crypto"
	"github.com/teusbenschop/cryptobot-sub002/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	// Инициализация репозиториев
	settingsRepo := repository.NewSettingsRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	multipathRepo := repository.NewMultipathRepository(db)

	// После аварийного завершения флаги executing могли остаться
	// взведёнными и навсегда исключить планы из выборки планировщика
	if n, err := multipathRepo.ClearExecuting(context.Background()); err != nil {
		logger.Fatal("failed to clear executing flags", zap.Error(err))
	} else if n > 0 {
		logger.Warn("cleared stale executing flags", zap.Int64("plans", n))
	}

	// Подключение бирж: расшифровка API ключей и поиск драйверов
	registry, err := connectExchanges(cfg, settingsRepo, logger)
	if err != nil {
		logger.Fatal("failed to connect exchanges", zap.Error(err))
	}
	venues := registry.Names()
	if len(venues) < 2 {
		logger.Fatal("need at least two connected exchanges", zap.Strings("venues", venues))
	}
	logger.Info("exchanges connected", zap.Strings("venues", venues))

	// Общие таблицы торгового ядра
	ledger := bot.NewLedger()
	pauses := bot.NewPauseTable()
	minSizes := bot.NewMinSizeTable()

	if sizes, err := settingsRepo.LoadMinimumTradeSizes(); err != nil {
		logger.Fatal("failed to load minimum trade sizes", zap.Error(err))
	} else {
		minSizes.Load(sizes)
	}
	if entries, err := settingsRepo.LoadPauses(); err != nil {
		logger.Fatal("failed to load pauses", zap.Error(err))
	} else {
		pauses.Load(entries)
	}
	if withdrawals, err := settingsRepo.LoadPendingWithdrawals(); err != nil {
		logger.Fatal("failed to load pending withdrawals", zap.Error(err))
	} else {
		ledger.LoadWithdrawals(withdrawals)
	}

	pairSpecs, err := settingsRepo.LoadTradingPairs()
	if err != nil {
		logger.Fatal("failed to load trading pairs", zap.Error(err))
	}
	if len(pairSpecs) == 0 {
		logger.Fatal("no trading pairs configured")
	}

	// Контекст процесса: живёт до SIGINT/SIGTERM
	procCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Начальные балансы леджера
	if err := seedLedger(procCtx, registry, ledger, pairSpecs); err != nil {
		logger.Fatal("failed to seed balance ledger", zap.Error(err))
	}

	// WebSocket hub и репортер
	hub := websocket.NewHub(logger)
	go hub.Run()
	reporter := bot.NewReporter(logger, hub)

	classifier := bot.NewClassifier(pauses, settingsRepo, reporter, logger)

	// Одинаковый ease-процент для всех бирж
	ease := make(map[string]float64, len(venues))
	for _, name := range venues {
		ease[name] = cfg.Trading.EasePercent
	}

	executor := bot.NewExecutor(registry, ledger, pauses, minSizes, classifier,
		tradeRepo, reporter, cfg.Trading, ease, cfg.DayAllowed, logger)
	runner := bot.NewPathRunner(registry, ledger, multipathRepo, reporter, cfg.Trading, ease, logger)
	scheduler := bot.NewScheduler(runner, multipathRepo, pauses,
		cfg.Trading.SchedulerTick, cfg.Trading.MultipathConcurrency, logger)

	// Мониторинговый HTTP сервер
	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(cfg.Web, pauses, multipathRepo, hub, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("monitoring server failed", zap.Error(err))
			}
		}()
	}

	// Торговое окно: все циклы завершаются на его границе; внешний
	// планировщик (systemd timer / cron) запускает процесс заново
	windowCtx, cancel := context.WithTimeout(procCtx, cfg.Trading.WindowDuration)
	defer cancel()

	logger.Info("trading window opened",
		zap.Duration("duration", cfg.Trading.WindowDuration),
		zap.Int("pairs", len(pairSpecs)))

	g, gctx := errgroup.WithContext(windowCtx)
	for _, spec := range pairSpecs {
		pair := bot.TradingPair{
			Market:    spec.Market,
			Coin:      spec.Coin,
			Exchanges: append([]string(nil), venues...),
		}
		g.Go(func() error {
			executor.RunPair(gctx, pair)
			return nil
		})
	}
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	_ = g.Wait()

	logger.Info("trading window closed")

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("monitoring server shutdown failed", zap.Error(err))
		}
	}
}

// initDatabase открывает подключение и проверяет его
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// connectExchanges расшифровывает API ключи учётных записей и создает
// клиентов через зарегистрированные драйверы. Учётная запись без
// драйвера пропускается с предупреждением.
func connectExchanges(cfg *config.Config, settings *repository.SettingsRepository, logger *zap.Logger) (*exchange.Registry, error) {
	key, err := crypto.DeriveKey(cfg.Security.EncryptionPassphrase, []byte(cfg.Security.EncryptionSalt))
	if err != nil {
		return nil, err
	}

	accounts, err := settings.LoadExchangeAccounts()
	if err != nil {
		return nil, err
	}

	registry := exchange.NewRegistry()
	for _, acc := range accounts {
		apiKey, err := crypto.Decrypt(acc.APIKeyEncrypted, key)
		if err != nil {
			logger.Error("failed to decrypt api key", zap.String("exchange", acc.Name), zap.Error(err))
			continue
		}
		apiSecret, err := crypto.Decrypt(acc.APISecretEncrypted, key)
		if err != nil {
			logger.Error("failed to decrypt api secret", zap.String("exchange", acc.Name), zap.Error(err))
			continue
		}

		client, err := exchange.Connect(acc.Name, exchange.Credentials{APIKey: apiKey, APISecret: apiSecret})
		if err != nil {
			logger.Warn("skipping exchange account", zap.String("exchange", acc.Name), zap.Error(err))
			continue
		}
		registry.Add(client)
	}

	return registry, nil
}

// seedLedger загружает начальные балансы всех бирж в леджер: базовые
// валюты рынков и монеты всех настроенных пар
func seedLedger(ctx context.Context, registry *exchange.Registry, ledger *bot.Ledger, pairs []models.TradingPairSpec) error {
	coins := make(map[string]struct{})
	for _, p := range pairs {
		coins[p.Market] = struct{}{}
		coins[p.Coin] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range registry.Names() {
		exch, err := registry.Get(name)
		if err != nil {
			return err
		}
		for coin := range coins {
			name, coin := name, coin
			g.Go(func() error {
				bal, err := exch.GetBalance(gctx, coin)
				if err != nil {
					return err
				}
				ledger.Lock()
				ledger.Commit(name, coin, bal.Total, bal.Available, bal.Reserved, bal.Unconfirmed)
				ledger.Unlock()
				return nil
			})
		}
	}
	return g.Wait()
}
