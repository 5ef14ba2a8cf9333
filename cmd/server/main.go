package main

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/cliniva/access-core/internal/audit"
	"github.com/cliniva/access-core/internal/auth"
	"github.com/cliniva/access-core/internal/config"
	"github.com/cliniva/access-core/internal/database"
	"github.com/cliniva/access-core/internal/handler"
	"github.com/cliniva/access-core/internal/notify"
	"github.com/cliniva/access-core/internal/ratelimit"
	"github.com/cliniva/access-core/internal/repository"
	"github.com/cliniva/access-core/internal/router"
	"github.com/cliniva/access-core/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer func() { _ = db.Close() }()

	principals := repository.NewPrincipalRepo(db)
	audits := audit.NewRecorder(repository.NewAuditRepo(db), log)
	codec := auth.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)

	// The counter store is shared through redis when available; otherwise
	// counts are process-local, which is only correct for a single instance.
	var limiter *ratelimit.Limiter
	if rlCfg.Enabled {
		var counters ratelimit.CounterStore = ratelimit.NewMemoryStore()
		if rdb := config.NewRedisClient(); rdb != nil {
			counters = ratelimit.NewRedisStore(rdb)
		} else {
			log.Warn("redis unavailable, rate-limit counters are process-local")
		}
		limiter = ratelimit.NewLimiter(counters, rlCfg.Quotas, rlCfg.Window)
	}

	var delivery notify.ResetDelivery = notify.LogResetDelivery{Log: log}
	if cfg.AMQPURL != "" {
		delivery = notify.NewAMQResetPublisher(cfg.AMQPURL, log)
	}

	svc := service.NewAuthService(principals, codec, audits, delivery, log, cfg.BcryptCost, cfg.ResetTokenTTL)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Auth:       handler.NewAuthHandler(svc),
		Codec:      codec,
		Principals: principals,
		Audits:     audits,
		Limiter:    limiter,
		Log:        log,
	})

	addr := ":" + cfg.Port
	log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
	if err := e.Start(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
