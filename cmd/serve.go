package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"farmiot/internal/config"
	"farmiot/internal/controller"
	"farmiot/internal/ingest"
	"farmiot/internal/query"
	"farmiot/internal/repository"
	"farmiot/internal/routes"
	"farmiot/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the telemetry ingest worker",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd.Context()); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	influx := repository.NewInfluxDBRepository(repository.InfluxDBOptions{
		URL:         cfg.InfluxDBURL,
		Token:       cfg.InfluxDBToken,
		Org:         cfg.InfluxDBOrg,
		Bucket:      cfg.InfluxDBBucket,
		Measurement: cfg.InfluxDBMeasurement,
		InlineQuery: cfg.InlineQueryParams,
	})
	defer influx.Close()

	data := service.NewDataService(influx)
	bootCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := data.Bootstrap(bootCtx, cfg.InfluxDBBucket); err != nil {
		// Reads degrade while the store is down, so boot continues.
		log.WithField("bucket", cfg.InfluxDBBucket).Warnf("InfluxDB bootstrap failed: %v", err)
	}
	cancel()

	docs, closeDocs, err := openDocumentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	store, closeCodes, err := openCodeStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCodes()

	codes := service.NewRegistrationCodeService(store, cfg.RegistrationTTL)
	pending := service.NewPendingRegistry(codes)
	provisioning := service.NewProvisioningService(docs, codes, pending)
	readings := service.NewReadingService(influx, service.ReadingOptions{
		Builder: query.Builder{
			Bucket:      cfg.InfluxDBBucket,
			Measurement: cfg.InfluxDBMeasurement,
			RowLimit:    cfg.ReadingsRowLimit,
		},
		DefaultHours: cfg.ReadingsDefaultHours,
		MaxHours:     cfg.ReadingsMaxHours,
	})

	router := mux.NewRouter()
	routes.RegisterRoutes(router,
		controller.NewDeviceController(readings, provisioning, codes),
		controller.NewRegistrationController(provisioning, codes, pending),
	)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-ID"},
		ExposedHeaders:   []string{"Warning"},
		AllowCredentials: true,
	})

	if cfg.MQTTBroker != "" {
		client, err := ingest.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.Errorf("Telemetry ingest disabled: %v", err)
		} else {
			defer client.Disconnect(250 * time.Millisecond)
			ing := &ingest.Ingestor{Data: data, Topic: cfg.MQTTTopic}
			if err := ing.Start(ctx, client); err != nil {
				log.Errorf("Telemetry ingest disabled: %v", err)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server is running on port %s...", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadConfig runs the boot order: .env, environment and defaults, then the
// vault merge, then a single Resolve.
func loadConfig(ctx context.Context) (config.Config, error) {
	store := config.LoadConfig(envFile)

	if store.GetBool("secrets:enabled") {
		vault, err := config.NewSecretManagerVault(ctx, store.GetString("gcp:project"))
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to open secret manager: %w", err)
		}
		defer vault.Close()

		secrets, err := config.NewSecretProvider(vault).Load(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load secrets: %w", err)
		}
		if err := store.MergeSecrets(secrets); err != nil {
			return config.Config{}, err
		}
	}
	return store.Resolve()
}

func openDocumentStore(ctx context.Context, cfg config.Config) (repository.DocumentRepository, func(), error) {
	if cfg.DocumentStoreDriver == "memory" {
		log.Warn("Using in-memory document store; provisioning data is lost on restart")
		return repository.NewMemoryDocumentRepository(), func() {}, nil
	}
	fs, err := repository.NewFirestoreRepository(ctx, cfg.GCPProject)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open firestore: %w", err)
	}
	return fs, closer(fs, "firestore"), nil
}

func openCodeStore(ctx context.Context, cfg config.Config) (repository.CodeStore, func(), error) {
	if cfg.CodeStoreDriver == "memory" {
		return repository.NewMemoryCodeStore(), func() {}, nil
	}
	rs, err := repository.NewRedisCodeStore(ctx, repository.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open redis: %w", err)
	}
	return rs, closer(rs, "redis"), nil
}

func closer(c io.Closer, subsystem string) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.WithField("subsystem", subsystem).Warnf("Close failed: %v", err)
		}
	}
}
