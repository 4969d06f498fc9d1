package main

import (
	"context"
	"flag"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/robfig/cron/v3"

	"github.com/emandor/quizdesk_service/internal/auth"
	"github.com/emandor/quizdesk_service/internal/cache"
	"github.com/emandor/quizdesk_service/internal/config"
	"github.com/emandor/quizdesk_service/internal/db"
	"github.com/emandor/quizdesk_service/internal/middleware"
	"github.com/emandor/quizdesk_service/internal/quiz"
	"github.com/emandor/quizdesk_service/internal/telemetry"
	"github.com/emandor/quizdesk_service/internal/token"
)

func main() {
	doMigrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	cfg := config.Load()
	sqlxDB := db.MustConnect(cfg.DBDSN)
	rdb := cache.MustConnect(cfg.RedisAddr, cfg.RedisDB)

	tlog := telemetry.Init(telemetry.FromEnv(config.GetEnv))
	tlog.Info().Str("port", cfg.AppPort).Msg("booting quizdesk_service")

	if *doMigrate {
		db.MustMigrate(sqlxDB)
		log.Println("migrations done")
		return
	}

	tokens := token.NewManager(token.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		StoreTTL:      cfg.RefreshStoreTTL,
	}, token.NewSQLRefreshStore(sqlxDB))

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.TokenSweepSpec, func() {
		tokens.SweepExpired(context.Background())
	}); err != nil {
		tlog.Fatal().Err(err).Msg("invalid token sweep schedule")
	}
	sweeper.Start()

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(cfg.AppEnv),
	})

	app.Use(middleware.RateLimiter())
	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecureHeaders())
	app.Use(middleware.RequestLog())

	authReg := auth.NewRegistry(cfg, sqlxDB, tokens, auth.NewGoogleClient(cfg))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Post("/api/v1/auth/google", authReg.GoogleAuth)
	app.Post("/api/v1/auth/refresh", authReg.Refresh)

	qh := quiz.NewHandler(quiz.NewService(quiz.NewSQLStore(sqlxDB), rdb, cfg.AttemptLockTTL))
	protected := app.Group("/api/v1", middleware.Auth(tokens))

	protected.Post("/auth/logout", authReg.Logout)
	protected.Get("/auth/me", authReg.Me)

	protected.Get("/quizzes", qh.List)
	protected.Get("/quizzes/:quizId", qh.Detail)
	protected.Post("/quizzes/:quizId/draft", qh.SaveDraft)
	protected.Post("/quizzes/:quizId/submit", qh.Submit)
	protected.Get("/quizzes/:quizId/result", qh.Result)

	err := app.Listen(":" + cfg.AppPort)
	sweeper.Stop()
	if err != nil {
		tlog.Fatal().Err(err).Msg("server exited")
	}
}
