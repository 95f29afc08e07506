package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/cache"
	"github.com/asmorodws/simlok2-sub012/internal/config"
	"github.com/asmorodws/simlok2-sub012/internal/database"
	"github.com/asmorodws/simlok2-sub012/internal/handler"
	"github.com/asmorodws/simlok2-sub012/internal/queue"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
	"github.com/asmorodws/simlok2-sub012/internal/router"
	"github.com/asmorodws/simlok2-sub012/internal/service"
	"github.com/asmorodws/simlok2-sub012/internal/token"
)

func main() {
	// Load .env in development; in production the environment is injected
	// by the platform and the file simply does not exist.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis backs the rate limiter and the response cache.  nil means
	// Redis was unreachable; both middlewares degrade to pass-through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting and response caching disabled")
	}

	// The broker carries live dashboard events and the audit mirror.  A
	// failed dial is survivable: publishing becomes a no-op and streams
	// degrade to heartbeats, while every state change stays durable in
	// MySQL.
	broker, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.Printf("broker unavailable; live events disabled: %v", err)
		broker = nil
	} else {
		defer broker.Close()
	}
	go func() {
		if err := queue.StartAuditConsumer(cfg.AMQPURL); err != nil {
			log.Printf("audit-consumer stopped: %v", err)
		}
	}()

	codec, err := token.New(cfg.TokenSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	permits := repository.NewPermitRepo(db)
	scans := repository.NewScanRepo(db)
	notifications := repository.NewNotificationRepo(db)
	users := repository.NewUserRepo(db)
	counters := repository.NewCounterRepo(db, cfg.CounterTxTimeout)

	validation := cache.NewValidation()
	stopSweeper := validation.StartSweeper(cfg.ValidationTTL, 10*cfg.ValidationTTL)
	defer stopSweeper()

	publisher := service.NewEventPublisher(broker)
	subjects := handler.NewSubjectValidator(users, validation, cfg.ValidationTTL)

	verifyH := handler.NewVerifyHandler(codec, permits, scans, notifications, publisher, subjects)
	permitH := handler.NewPermitHandler(permits, counters, scans, notifications, codec, publisher)
	notifH := handler.NewNotificationHandler(notifications)
	streamH := handler.NewStreamHandler(broker, subjects, cfg.HeartbeatEvery)
	counterH := handler.NewCounterHandler(counters, publisher)

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e)
	router.RegisterVerification(e, verifyH, cfg.TokenSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterPermits(e, permitH, cfg.TokenSecret, config.LoadCacheConfig(), rdb)
	router.RegisterDashboard(e, notifH, streamH, cfg.TokenSecret)
	router.RegisterAdmin(e, counterH, cfg.TokenSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
