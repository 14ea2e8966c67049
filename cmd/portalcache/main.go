package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portalcache/pkg/cache"
	"portalcache/pkg/cache/backend"
	"portalcache/pkg/cache/client"
	"portalcache/pkg/command"
	"portalcache/pkg/config"
	"portalcache/pkg/logger"
	"portalcache/pkg/scheduler"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (例如 ./config/portalcache.yaml)")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)，覆盖配置文件")
	port       = flag.String("port", "", "HTTP 端口，覆盖配置文件")
)

const shutdownTimeout = 10 * time.Second

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	logger.Init(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format})
	log := logger.WithComponent("main")

	backendCache := backend.New(backend.Config{DefaultTTL: cfg.BackendCache.DefaultTTL})
	clientCache := client.New(client.Config{
		DefaultTTLMinutes: cfg.ClientCache.DefaultTTLMinutes,
		MaxSizeBytes:      cfg.ClientCache.MaxSizeBytes,
		SweepInterval:     cfg.ClientCache.SweepInterval,
		RejectOversized:   cfg.ClientCache.RejectOversized,
	})

	sched := scheduler.New(nil)
	if err := sched.RegisterPurge(cfg.Scheduler.PurgeSpec, backendCache); err != nil {
		log.WithError(err).Fatal("Failed to register purge job")
	}
	clientStats := scheduler.StatsFunc(func() (cache.Stats, error) {
		return clientCache.Stats(), nil
	})
	sources := map[string]scheduler.StatsSource{
		"backend": backendCache,
		"client":  clientStats,
	}
	if err := sched.RegisterStats(cfg.Scheduler.StatsSpec, sources); err != nil {
		log.WithError(err).Fatal("Failed to register stats job")
	}
	sched.Start()

	gin.SetMode(cfg.Server.Mode)
	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: command.NewRouter(command.New(backendCache, nil)),
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting portalcache server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down portalcache server...")
	shutdown(log, server, sched, clientCache)
}

func shutdown(log *logrus.Entry, server *http.Server, sched *scheduler.Scheduler, clientCache *client.Cache) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := sched.Stop(ctx); err != nil {
		log.WithError(err).Warn("Scheduler did not stop in time")
	}
	if err := clientCache.Close(); err != nil {
		log.WithError(err).Warn("Failed to close client cache")
	}

	log.Info("portalcache server stopped")
}
