package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/mwslabs/dinesync/internal/platform/timeouts"
	"github.com/mwslabs/dinesync/internal/services/directory/proxy"
	"github.com/mwslabs/dinesync/internal/services/directory/queue"
	"github.com/mwslabs/dinesync/internal/services/directory/storage"
	"github.com/mwslabs/dinesync/internal/services/directory/storage/sqlite"
	"github.com/mwslabs/dinesync/internal/services/directory/upstream"
)

// RuntimeConfig controls directory startup, dependencies, and sync behavior.
type RuntimeConfig struct {
	Port          int
	HealthPort    int
	APIBaseURL    string
	ShellOrigin   string
	DBPath        string
	AssetDir      string
	PrecachePaths []string
	PollInterval  time.Duration
	AllowOrigins  []string
}

const (
	defaultDirectoryPort   = 8080
	defaultDirectoryHealth = 8090
	defaultDirectoryDB     = "data/directory.db"
	defaultAssetDir        = "data/assets"
)

// defaultPrecachePaths is the app shell: the files fetched and cached at
// startup so the UI renders with no network at all.
var defaultPrecachePaths = []string{
	"/",
	"/index.html",
	"/restaurant.html",
	"/css/styles.css",
	"/js/main.js",
	"/js/dbhelper.js",
	"/js/restaurant_info.js",
}

// Run starts the directory runtime: the local store, the background sync
// loop, the interception HTTP server, and the health gRPC server. It blocks
// until ctx is done.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(cfg.ShellOrigin) == "" {
		cfg.ShellOrigin = cfg.APIBaseURL
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultDirectoryPort
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultDirectoryHealth
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDirectoryDB
	}
	if strings.TrimSpace(cfg.AssetDir) == "" {
		cfg.AssetDir = defaultAssetDir
	}
	if len(cfg.PrecachePaths) == 0 {
		cfg.PrecachePaths = defaultPrecachePaths
	}

	store := openStore(cfg.DBPath)
	if store != nil {
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close directory sqlite store: %v", closeErr)
			}
		}()
	}

	api, err := upstream.New(cfg.APIBaseURL, nil)
	if err != nil {
		return fmt.Errorf("build upstream client: %w", err)
	}

	// A nil store flows through every layer as network-only degradation.
	var pendingStore storage.PendingStore
	var proxyStore proxy.Store
	if store != nil {
		pendingStore = store
		proxyStore = store
	}

	writeQueue, err := queue.New(pendingStore, api, loggingEvents{})
	if err != nil {
		return fmt.Errorf("build write queue: %w", err)
	}

	assets, err := proxy.NewAssetCache(cfg.AssetDir, nil)
	if err != nil {
		return fmt.Errorf("build asset cache: %w", err)
	}
	assets.Precache(ctx, cfg.ShellOrigin, cfg.PrecachePaths)

	handler, err := proxy.New(proxy.Config{
		ShellOrigin: cfg.ShellOrigin,
		API:         api,
		Store:       proxyStore,
		Assets:      assets,
	})
	if err != nil {
		return fmt.Errorf("build interception handler: %w", err)
	}

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	defer healthListener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("directory.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	healthErr := make(chan error, 1)
	go func() {
		healthErr <- grpcServer.Serve(healthListener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-healthErr
	}()

	// Background sync: replay queued writes at startup, then on every
	// enqueue signal and poll tick.
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		if err := writeQueue.Run(ctx, queue.RunnerConfig{PollInterval: cfg.PollInterval}); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sync runner stopped: %v", err)
		}
	}()

	corsOptions := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", upstream.IdempotencyKeyHeader},
	}
	if len(cfg.AllowOrigins) > 0 {
		corsOptions.AllowedOrigins = cfg.AllowOrigins
	} else {
		corsOptions.AllowedOrigins = []string{"*"}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           cors.New(corsOptions).Handler(handler),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	log.Printf("directory server listening at %s", httpServer.Addr)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("serve directory: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown directory server: %v", err)
	}
	<-serveErr
	<-drainDone
	return ctx.Err()
}

// openStore opens the sqlite store, degrading to nil (network-only mode)
// when it cannot be opened: the app still works, it just cannot serve or
// queue anything while offline.
func openStore(dbPath string) storage.Store {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("create directory storage dir: %v; continuing without local store", err)
			return nil
		}
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		log.Printf("open directory sqlite store: %v; continuing without local store", err)
		return nil
	}
	return store
}

// loggingEvents surfaces write lifecycle transitions in the log, standing in
// for the UI toast notifications.
type loggingEvents struct{}

func (loggingEvents) WriteQueued()    { log.Print("write queued for sync") }
func (loggingEvents) WriteConfirmed() { log.Print("queued write delivered") }
