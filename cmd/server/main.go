package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/LingByte/EchoClass/cmd/bootstrap"
	"github.com/LingByte/EchoClass/pkg/classroom"
	"github.com/LingByte/EchoClass/pkg/config"
	"github.com/LingByte/EchoClass/pkg/devices"
	"github.com/LingByte/EchoClass/pkg/logger"
	"github.com/LingByte/EchoClass/pkg/metrics"
	"github.com/LingByte/EchoClass/pkg/server"
	"github.com/LingByte/EchoClass/pkg/signaling"
	"github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia"
	rtcconfig "github.com/LingByte/EchoClass/pkg/webrtc/rtcmedia/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. Parse Command Line Parameters
	addr := flag.String("addr", "", "HTTP serve address, overrides ADDR")
	mode := flag.String("mode", "", "running environment (development, test, production)")
	flag.Parse()
	if *mode != "" {
		os.Setenv("MODE", *mode)
	}
	// 2. Load Global Configuration
	if err := config.Load(); err != nil {
		panic("config load failed: " + err.Error())
	}
	cfg := config.GlobalConfig
	// 3. Load Log Configuration
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	// 4. Print Banner
	if err := bootstrap.PrintBannerFromFile("banner.txt", cfg.ServerName); err != nil {
		log.Fatalf("unload banner: %v", err)
	}
	// 5. Print Configuration
	bootstrap.LogConfigInfo(cfg)

	if *addr == "" {
		*addr = cfg.Addr
	}
	if !strings.Contains(*addr, ":") {
		*addr = ":" + *addr
	}

	// 6. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 7. Media engine, coordinator and signaling
	engine, err := rtcmedia.NewEngine(
		rtcconfig.FromConfig(cfg.WebRTC),
		devices.CaptureOpener(cfg.Devices, logger.Named("capture")),
		devices.PlaybackOpener(cfg.Devices, logger.Named("playback")),
		logger.Lg,
	)
	if err != nil {
		logger.Fatal("media engine setup failed", zap.Error(err))
	}
	coord := classroom.NewCoordinator(engine, classroom.Options{
		MaxParticipants: cfg.Classroom.MaxParticipants,
		DisconnectGrace: cfg.Classroom.DisconnectGrace,
		Metrics:         m,
	}, logger.Named("classroom"))
	hub := signaling.NewHub(coord, signaling.OptionsFromConfig(cfg.Signaling), m, logger.Lg)
	coord.SetSignaler(hub)

	// 8. HTTP
	if !logger.IsDevelopment(cfg.Mode) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(coord, hub, registry, logger.Lg)
	httpServer := &http.Server{
		Addr:           *addr,
		Handler:        srv.Router(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.Run(ctx, httpServer, logger.Lg); err != nil {
		logger.Error("HTTP server run failed", zap.Error(err))
	}

	// 9. Graceful shutdown: rooms first so members hear roomClosed, then sockets
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		logger.Error("coordinator shutdown", zap.Error(err))
	}
	hub.Close()
	logger.Info("server stopped")
}
