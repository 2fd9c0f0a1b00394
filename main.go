package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/spf13/pflag"

	"blindshake_server/config"
	"blindshake_server/middleware"
	"blindshake_server/routes"
	"blindshake_server/services"
	"blindshake_server/socket"
	"blindshake_server/store"
	"blindshake_server/store/dynamo"
	mongostore "blindshake_server/store/mongo"
	"blindshake_server/store/postgres"
)

func main() {
	config.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := config.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()
	logger.Info("store ready", "backend", cfg.Store.Backend)

	profiles, err := openProfiles(ctx, cfg, logger)
	if err != nil {
		return err
	}
	photos, err := openPhotoSigner(ctx, cfg)
	if err != nil {
		return err
	}

	auth := middleware.NewAuthenticator(cfg.Auth.JWTSecret, logger)
	sock := socket.NewSocketServer(auth, st, logger)
	go func() {
		if err := sock.Serve(); err != nil {
			logger.Error("socket server stopped", "error", err)
		}
	}()
	defer sock.Close()

	clock := services.RealClock()
	index := cfg.GeoIndex()
	matching := cfg.MatchingOptions()
	lifecycleOpts := cfg.LifecycleOptions()

	pool := services.NewPoolService(st, index, clock, logger, matching)
	matchmaker := services.NewMatchmaker(st, st, index, clock, logger, matching)
	lifecycle := services.NewLifecycleService(st, profiles, photos, sock, clock, logger, lifecycleOpts)
	shake := services.NewShakeService(pool, matchmaker, st, profiles, logger)
	sweeper := services.NewSweeper(pool, lifecycle, st, profiles, clock, logger, lifecycleOpts)

	scheduler, err := services.NewScheduler(sweeper, cfg.Schedules(), logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := scheduler.Stop(stopCtx); err != nil {
			logger.Warn("sweeps still running at shutdown", "error", err)
		}
	}()

	r := mux.NewRouter()
	routes.RegisterRoutes(r)
	routes.RegisterShakeRoutes(r, shake, auth.Authenticate)
	routes.RegisterMatchRoutes(r, lifecycle, auth.Authenticate)
	routes.RegisterAdminRoutes(r, sweeper, cfg.Auth.OperatorKey)
	r.PathPrefix("/socket.io/").Handler(sock.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.OperatorKeyHeader},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendDynamo:
		client, err := dynamo.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return dynamo.New(client, dynamo.NewTables(cfg.Store.TablePrefix), logger), nil
	case config.BackendMongo:
		s, err := mongostore.Open(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := s.CreateSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

func openProfiles(ctx context.Context, cfg *config.Config, logger *slog.Logger) (services.ProfileDirectory, error) {
	if cfg.Store.ProfileSource != config.BackendDynamo {
		logger.Warn("using in-memory profile directory")
		return services.NewMemoryProfileDirectory(), nil
	}
	client, err := dynamo.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.DynamoEndpoint)
	if err != nil {
		return nil, err
	}
	ds := &dynamo.DynamoService{Client: client, Logger: logger}
	return services.NewDynamoProfileDirectory(ds, cfg.Store.ProfilesTable, logger), nil
}

func openPhotoSigner(ctx context.Context, cfg *config.Config) (services.PhotoSigner, error) {
	if cfg.Photos.Bucket == "" {
		return services.PassthroughSigner(), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.AWSRegion))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}
	return services.NewS3PhotoSigner(s3.NewFromConfig(awsCfg), cfg.Photos.Bucket, cfg.Photos.PresignExpiry), nil
}
