// mishard router: sharding middleware in front of vector-search backend
// nodes.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mishard/core/pkg/backend"
	"github.com/mishard/core/pkg/config"
	"github.com/mishard/core/pkg/cron"
	"github.com/mishard/core/pkg/dispatch"
	"github.com/mishard/core/pkg/metadata"
	"github.com/mishard/core/pkg/planner"
	"github.com/mishard/core/pkg/pool"
	"github.com/mishard/core/pkg/service"
	"github.com/mishard/core/pkg/tracing"
	"github.com/mishard/core/pkg/transport/grpcapi"
	"github.com/mishard/core/pkg/transport/httpapi"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	httpAddr := flag.String("http-addr", "", "HTTP API address")
	grpcAddr := flag.String("grpc-addr", "", "gRPC address")
	backends := flag.String("backends", "", "Comma-separated backend addresses for admin pass-through")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}

	logger.Info("starting mishard",
		zap.String("node_id", cfg.NodeID),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
	)

	store := metadata.NewInMemoryStore()

	tracer := tracing.Tracer(tracing.Noop)
	if cfg.TracingEnabled {
		tracer = &tracing.LogTracer{Logger: logger}
	}

	poolCfg := pool.Config{
		MaxSize:        cfg.PoolSize,
		MaxIdleTime:    time.Duration(cfg.PoolRecycleSeconds) * time.Second,
		AcquireTimeout: time.Duration(cfg.PoolTimeoutSeconds) * time.Second,
	}
	connPool := pool.New(poolCfg, backend.DialTCP, logger)
	defer connPool.Close()

	rp := planner.New(store)
	disp := dispatch.New(connPool, tracer, cfg.MaxWorkers, logger)

	addrList := cfg.BackendAddrs
	if *backends != "" {
		addrList = strings.Split(*backends, ",")
	}
	addrBook := service.NewRoundRobinAddressBook(addrList)

	svc := service.New(store, rp, disp, connPool, addrBook, logger)

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.AddJob(cron.Job{
		Name:     "pool-maintain",
		Schedule: cfg.PoolMaintainCron,
		Run:      connPool.Maintain,
	}); err != nil {
		logger.Fatal("failed to schedule pool maintenance", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := httpapi.NewServer(svc, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apiServer.Handler(),
	}
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.Error(err))
	}
	grpcServer := grpcapi.NewServer(svc, logger)
	go func() {
		logger.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("grpc server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	httpServer.Shutdown(ctx)
	grpcServer.GracefulStop()

	logger.Info("shutdown complete")
}
