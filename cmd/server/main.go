package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/scan-rewards/internal/config"
	"github.com/iliyamo/scan-rewards/internal/database"
	"github.com/iliyamo/scan-rewards/internal/handler"
	"github.com/iliyamo/scan-rewards/internal/logging"
	"github.com/iliyamo/scan-rewards/internal/metrics"
	"github.com/iliyamo/scan-rewards/internal/middleware"
	"github.com/iliyamo/scan-rewards/internal/qrcode"
	"github.com/iliyamo/scan-rewards/internal/queue"
	"github.com/iliyamo/scan-rewards/internal/repository"
	"github.com/iliyamo/scan-rewards/internal/router"
	"github.com/iliyamo/scan-rewards/internal/service"
)

func main() {
	cfg := config.Load() // Load environment config
	log := logging.New(cfg.LogLevel)

	db, err := database.Open(database.Dialect(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	migCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	err = database.Migrate(migCtx, db)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("migrate database")
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unreachable, scan rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	m := metrics.New()

	// Repositories
	userRepo := repository.NewUserRepo(db)
	refreshRepo := repository.NewRefreshTokenRepo(db)
	qrRepo := repository.NewQRTokenRepo(db)
	ledgerRepo := repository.NewLedgerRepo(db)

	// Services
	tokens := service.NewTokenManager(qrRepo, qrcode.New(cfg.QRPrefix, cfg.QRTokenBytes), cfg.AwardLocation, m, log)
	engine := service.NewRedemptionEngine(service.RedemptionDeps{
		DB:      db,
		Tokens:  tokens,
		Touch:   qrRepo,
		Users:   userRepo,
		Awards:  repository.NewAwardRepo(db),
		Ledger:  ledgerRepo,
		Reward:  cfg.RewardPerScan,
		Metrics: m,
		Log:     log,
	})

	pub, err := queue.NewPublisher(queue.BrokerConfig{
		Kind:         cfg.EventsBroker,
		RabbitURL:    cfg.RabbitURL,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("events publisher")
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EventsConsumer {
		go runConsumer(ctx, cfg, log)
	}

	// Handlers
	authH := handler.NewAuthHandler(cfg, userRepo, refreshRepo, log)
	profileH := handler.NewProfileHandler(userRepo, ledgerRepo, tokens, log)
	scanH := handler.NewScanHandler(engine, pub, m, log)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))
	router.RegisterRoutes(e, db, m)
	router.RegisterAuth(e, authH)
	router.RegisterProfile(e, profileH, cfg.JWTSecret)
	router.RegisterScan(e, scanH, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "db": cfg.DBDriver}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := e.Shutdown(shutCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	scanH.Wait()
}

// runConsumer appends scan.awarded events to logs/awards.log from the
// configured broker until ctx is cancelled.
func runConsumer(ctx context.Context, cfg config.Config, log logrus.FieldLogger) {
	sink := queue.NewAwardLog(os.Getenv("AWARD_LOG_DIR"))
	var err error
	switch cfg.EventsBroker {
	case "amqp", "rabbitmq":
		err = queue.ConsumeAMQP(ctx, cfg.RabbitURL, sink, log)
	case "kafka":
		err = queue.ConsumeKafka(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, "scan-rewards-award-log", sink, log)
	default:
		log.WithField("broker", cfg.EventsBroker).Warn("events consumer enabled without a broker")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("events consumer stopped")
	}
}
