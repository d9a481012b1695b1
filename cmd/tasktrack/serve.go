package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"tasktrack/internal/api"
	"tasktrack/internal/auth"
	"tasktrack/internal/bot"
	"tasktrack/internal/config"
	"tasktrack/internal/repository"
	"tasktrack/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, plus the bot and scheduler when a Telegram token is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.Debug)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	tagRepo := repository.NewTagRepository(db)

	tagSvc := service.NewTagService(db, tagRepo, taskRepo)
	taskSvc := service.NewTaskService(db, taskRepo, tagSvc)
	authSvc := service.NewAuthService(userRepo, auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL))
	summarySvc := service.NewSummaryService(taskSvc)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(authSvc, taskSvc, tagSvc)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Printf("[info] http api listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	if cfg.BotEnabled() {
		var telegramBot *bot.Bot
		scheduler := service.NewSchedulerService(time.Local)
		if _, err := scheduler.ScheduleReport(cfg.ReportAt, cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			shutdown(srv)
			return fmt.Errorf("schedule reports: %w", err)
		}

		telegramBot, err = bot.New(cfg.TelegramToken, userRepo, taskSvc, tagSvc, summarySvc, cfg)
		if err != nil {
			shutdown(srv)
			return fmt.Errorf("bot: %w", err)
		}

		scheduler.Start()
		defer scheduler.Stop()

		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("bot: %w", err)
			}
		}()
	} else {
		log.Println("[info] TELEGRAM_TOKEN not set, bot disabled")
	}

	select {
	case <-ctx.Done():
	case err := <-errc:
		log.Printf("[error] %v", err)
		shutdown(srv)
		return err
	}

	shutdown(srv)
	log.Println("Shutdown complete.")
	return nil
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
