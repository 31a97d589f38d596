package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/BrandonDHaskell/refectory/internal/config"
	"github.com/BrandonDHaskell/refectory/internal/health"
	"github.com/BrandonDHaskell/refectory/internal/httpapi"
	"github.com/BrandonDHaskell/refectory/internal/readerapi"
	"github.com/BrandonDHaskell/refectory/internal/reconcile"
	"github.com/BrandonDHaskell/refectory/internal/refectory/service"
	"github.com/BrandonDHaskell/refectory/internal/roster"
)

func main() {
	logger := log.New(os.Stdout, "refectory-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer st.close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := reconcile.NewMetrics(reg)

	// Services
	registry := service.NewDeviceRegistry(st.devices)
	heartbeatSvc := service.NewHeartbeatService(st.heartbeats, registry)
	swipeSvc := service.NewSwipeService(st.cards, st.audit, registry, service.SwipeConfig{
		Schedule:    cfg.Schedule(),
		LockTimeout: cfg.LockTimeout(),
		Location:    cfg.Location(),
	}, logger)
	swipeSvc.SetObserver(metrics)
	adminSvc := service.NewAdminService(st.cards, st.audit, cfg.Schedule(), cfg.Location())

	pruner := service.NewHeartbeatPruner(st.heartbeats, service.PrunerConfig{
		Retention: cfg.HeartbeatRetention(),
		Interval:  cfg.PruneInterval(),
	}, logger)
	pruner.Start(ctx)

	// Roster pipeline
	monitor := health.NewMonitor(cfg.HealthErrorCap)
	cache, err := roster.NewCachedSource(roster.XLSXSource{}, cfg.SheetCacheSize)
	if err != nil {
		logger.Fatalf("sheet cache: %v", err)
	}

	var dispatcher *reconcile.Dispatcher
	watcher := roster.NewWatcher(roster.WatcherConfig{Dir: cfg.RosterDir}, cache, monitor, logger,
		func(doc roster.Document) {
			if _, err := dispatcher.TriggerNow("roster changed: " + doc.Name); err != nil {
				logger.Printf("roster change %s: %v", doc.Name, err)
			}
		})

	engine := reconcile.NewEngine(reconcile.Config{
		BatchSize:  cfg.BatchSize,
		MaxWorkers: cfg.MaxWorkers,
		Rule:       cfg.ShiftRule(),
	}, reconcile.Dependencies{
		Logger:  logger,
		Docs:    watcher,
		Source:  cache,
		Writer:  st.roster,
		Monitor: monitor,
		Metrics: metrics,
	})
	dispatcher = reconcile.NewDispatcher(engine, cfg.TimePoints(), cfg.Location(), 1, 8, logger)
	dispatcher.Start(ctx)
	scheduler := reconcile.NewScheduler(cfg.TimePoints(), cfg.Location(), dispatcher, logger)
	go scheduler.Run(ctx)

	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Printf("roster watcher error: %v", err)
			monitor.Fail("file_watch", err)
		}
	}()

	// Reader ingress
	reader := readerapi.NewServer(readerapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.ReaderAddr,
		SwipeService:     swipeSvc,
		HeartbeatService: heartbeatSvc,
		ReadTimeout:      cfg.ReadTimeout(),
		AcceptRate:       cfg.AcceptRate,
		AcceptBurst:      cfg.AcceptBurst,
	})

	// Admin HTTP
	admin := httpapi.NewServer(httpapi.Dependencies{
		Logger:       logger,
		Addr:         cfg.HTTPAddr,
		AdminService: adminSvc,
		Monitor:      monitor,
		Reconcile:    dispatcher,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Location:     cfg.Location(),
	})

	// gRPC health
	bridge := health.NewGRPCBridge(monitor)
	grpcServer := grpc.NewServer()
	bridge.Register(grpcServer)

	go func() {
		logger.Printf("reader ingress listening on %s", cfg.ReaderAddr)
		if err := reader.Start(); err != nil && !errors.Is(err, readerapi.ErrServerClosed) {
			logger.Printf("reader server error: %v", err)
			stop()
		}
	}()

	go func() {
		logger.Printf("admin api listening on %s", cfg.HTTPAddr)
		if err := admin.Start(); err != nil {
			logger.Printf("admin server error: %v", err)
			stop()
		}
	}()

	go func() {
		ln, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Printf("grpc listen error: %v", err)
			stop()
			return
		}
		logger.Printf("grpc health listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(ln); err != nil {
			logger.Printf("grpc server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bridge.Shutdown()
	_ = reader.Shutdown(shutdownCtx)
	_ = admin.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()

	dispatcher.Stop()
	pruner.Stop()
	<-scheduler.Done()
}
