package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Owill27/livekit/internal/config"
	"github.com/Owill27/livekit/internal/present/rest"
	"github.com/Owill27/livekit/internal/service"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error(
			"failed to load config",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	presence := service.NewPresenceService()
	ledger := service.NewCallLedger(conf.Server.HistoryRetention.Duration())
	signaling := service.NewSignalingService(presence, ledger, conf.Server.DialTimeout.Duration())
	tokens := service.NewTokenService(conf.LiveKit)
	monitor := service.NewLivenessMonitor(presence, signaling, conf.Server.PingInterval.Duration())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler := rest.NewHandler(presence, signaling, tokens)
	handler.RegisterRoutes(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := e.Start(conf.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}
}
