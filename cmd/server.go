package cmd

import (
	"context"
	"log"
	httpNet "net/http"
	"os"
	"os/signal"
	"syscall"

	"golang-stockbot/internal/delivery/http"
	"golang-stockbot/internal/delivery/telegram"
	"golang-stockbot/internal/repository"
	"golang-stockbot/internal/service"
	"golang-stockbot/pkg/deployment"
	"golang-stockbot/pkg/logger"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run golang-stockbot",
	Run:   Start,
}

func Start(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appDep, err := NewAppDependency(ctx)
	if err != nil {
		log.Fatalf("Failed to create app dependency: %v", err)
	}

	repo := repository.NewRepository(appDep.cfg, appDep.db, appDep.redis, appDep.validator, appDep.log)
	services, err := service.NewService(appDep.cfg, appDep.log, repo, appDep.cache, appDep.telegram)
	if err != nil {
		appDep.log.Error("Failed to create services", logger.ErrorField(err))
		_ = appDep.Close()
		os.Exit(1)
	}

	telegramHandler := telegram.NewTelegramBotHandler(
		ctx,
		appDep.cfg,
		appDep.log,
		appDep.telegramBot,
		appDep.telegram,
		appDep.echo,
		services,
		appDep.mode,
	)

	if appDep.mode == deployment.ModeLambda {
		runLambda(appDep, telegramHandler)
		return
	}

	httpHandler := http.NewHttpAPIHandler(ctx, appDep.echo, appDep.log, appDep.validator, services)
	apiServer := NewHTTPServer(ctx, appDep, httpHandler)

	telegramHandler.Start()
	appDep.telegram.StartCleanupExpired(ctx)

	if appDep.cfg.Scheduler.Enabled {
		if err := services.SchedulerService.Start(ctx); err != nil {
			appDep.log.Error("Failed to start scheduler", logger.ErrorField(err))
		}
	}

	go func() {
		if err := apiServer.Start(); err != nil && err != httpNet.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	appDep.log.Info("Shutting down gracefully...")

	services.SchedulerService.Stop()
	telegramHandler.Stop()
	appDep.telegram.StopCleanupExpired()

	if err := apiServer.Stop(); err != nil {
		appDep.log.Error("Failed to stop HTTP server", logger.ErrorField(err))
	}

	if err := appDep.Close(); err != nil {
		appDep.log.Error("Failed to close app dependency", logger.ErrorField(err))
	}
	_ = appDep.log.Sync()
}
