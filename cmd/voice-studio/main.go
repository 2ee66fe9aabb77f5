// main package for the voice-studio service
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/voice-studio/internal/api"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/objectstore"
	"github.com/book-expert/voice-studio/internal/provider"
	"github.com/book-expert/voice-studio/internal/recording"
	"github.com/book-expert/voice-studio/internal/store"
	"github.com/book-expert/voice-studio/internal/synthesis"
	"github.com/book-expert/voice-studio/internal/text"
	"github.com/book-expert/voice-studio/internal/worker"
)

const (
	flagConfigDesc = "Path to a TOML configuration file (defaults to the configurator search)"
	flagEnvDesc    = "Path to a .env file loaded before the configuration"
	defaultEnvFile = ".env"
)

func setupLogger(logPath, name string) (*logger.Logger, error) {
	log, err := logger.New(logPath, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func loadConfig(path string, log *logger.Logger) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}

	return config.Load(log)
}

// backends holds the wired domain components.
type backends struct {
	natsConnection *nats.Conn
	store          *store.Store
	objects        core.ObjectStore
	cloud          core.Synthesizer
	cloned         core.Synthesizer
	cloner         core.Cloner
	health         []api.HealthChecker
}

func (b *backends) close() {
	if b.natsConnection != nil {
		b.natsConnection.Close()
	}
}

func connectNATS(cfg *config.Config) (*nats.Conn, nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return natsConnection, jetstreamContext, nil
}

func wireBackends(cfg *config.Config, log *logger.Logger) (*backends, error) {
	wired := &backends{}

	var jetstreamContext nats.JetStreamContext

	if cfg.NATS.Enabled || cfg.Store.Backend == config.StoreNATS {
		natsConnection, js, err := connectNATS(cfg)
		if err != nil {
			return nil, err
		}

		wired.natsConnection = natsConnection
		jetstreamContext = js
	}

	storeBackend, err := newStoreBackend(cfg, jetstreamContext)
	if err != nil {
		wired.close()

		return nil, err
	}

	wired.store = store.New(storeBackend, log)

	if jetstreamContext != nil {
		objects, objectErr := objectstore.New(jetstreamContext, cfg.NATS.ObjectBucket)
		if objectErr != nil {
			wired.close()

			return nil, objectErr
		}

		wired.objects = objects
	} else {
		log.Warn("NATS is disabled; samples and audio are kept in memory only")
		wired.objects = objectstore.NewMemory()
	}

	wireProviders(cfg, log, wired)

	return wired, nil
}

func newStoreBackend(cfg *config.Config, jetstreamContext nats.JetStreamContext) (store.Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreNATS:
		return store.NewNATSBackend(jetstreamContext, cfg.NATS.KVBucket, cfg.Store.QuotaBytes)
	case config.StoreMemory:
		return store.NewMemoryBackend(int(cfg.Store.QuotaBytes)), nil
	default:
		return store.NewFileBackend(cfg.Store.Dir, cfg.Store.QuotaBytes)
	}
}

func wireProviders(cfg *config.Config, log *logger.Logger, wired *backends) {
	cloudCfg := cfg.Providers.CloudNeural

	if cloudCfg.Mode == config.ModeEdgeTTS {
		edge := provider.NewEdgeTTS(cloudCfg.Binary, log)
		wired.cloud = edge
		wired.health = append(wired.health, edge)
	} else {
		client := provider.NewCloudNeuralClient(cloudCfg.BaseURL, config.Timeout(cloudCfg.TimeoutSeconds))
		wired.cloud = client
		wired.health = append(wired.health, client)
	}

	clonedCfg := cfg.Providers.Cloned
	if clonedCfg.BaseURL != "" {
		client := provider.NewClonedClient(clonedCfg.BaseURL, clonedCfg.APIKey, config.Timeout(clonedCfg.TimeoutSeconds))
		wired.cloned = client
		wired.health = append(wired.health, client)
	} else {
		log.Warn("Cloned voice backend is not configured")
	}

	cloningCfg := cfg.Providers.Cloning
	if cloningCfg.BaseURL != "" {
		client := provider.NewCloningClient(cloningCfg.BaseURL, cloningCfg.APIKey, config.Timeout(cloningCfg.TimeoutSeconds))
		wired.cloner = client
		wired.health = append(wired.health, client)
	} else {
		log.Warn("Voice cloning backend is not configured")
	}
}

func run() error {
	configPath := flag.String("config", "", flagConfigDesc)
	envPath := flag.String("env", defaultEnvFile, flagEnvDesc)
	flag.Parse()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voice-studio-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load the environment, then the configuration
	err = config.LoadEnv(*envPath)
	if err != nil {
		bootstrapLog.Error("Failed to load environment: %v", err)

		return err
	}

	cfg, err := loadConfig(*configPath, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "voice-studio.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	// 4. Wire storage, transport and providers
	wired, err := wireBackends(cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to wire backends: %v", err)

		return err
	}
	defer wired.close()

	catalog := provider.NewVoiceCatalog(cfg.Providers.CloudNeural.DefaultVoices)

	orchestrator := synthesis.New(synthesis.Dependencies{
		Processor:   text.NewProcessor(cfg.Text.MaxLength),
		Store:       wired.store,
		CloudNeural: wired.cloud,
		Cloned:      wired.cloned,
		Cloner:      wired.cloner,
		Objects:     wired.objects,
		Voices:      catalog,
	}, synthesis.Config{
		Workers:          cfg.Synthesis.Workers,
		CloudChunkChars:  cfg.Providers.CloudNeural.MaxChunkChars,
		ClonedChunkChars: cfg.Providers.Cloned.MaxChunkChars,
		FallbackLanguage: cfg.Text.FallbackLanguage,
		ExpandForSpeech:  cfg.Text.ExpandForSpeech,
		StoreAudio:       cfg.Synthesis.StoreAudio,
	}, finalLog)

	server := api.NewServer(api.Dependencies{
		Orchestrator: orchestrator,
		Store:        wired.store,
		Objects:      wired.objects,
		Voices:       catalog,
		Health:       wired.health,
	}, api.Config{
		Address: cfg.Server.Address,
		Recording: recording.Config{
			MinSeconds:    cfg.Recording.MinSeconds,
			AllowDegraded: cfg.Recording.AllowDegraded,
		},
	}, finalLog)

	// 5. Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(groupCtx) })

	if cfg.NATS.Enabled {
		natsWorker, workerErr := worker.NewNatsWorker(
			wired.natsConnection, cfg.NATS.JobSubject, cfg.NATS.CompletedSubject, wired.objects, orchestrator, finalLog,
		)
		if workerErr != nil {
			return workerErr
		}

		group.Go(func() error { return natsWorker.Run(groupCtx) })
	}

	finalLog.System("Voice studio initialized. Store: %s, cloud neural mode: %s", cfg.Store.Backend, cfg.Providers.CloudNeural.Mode)

	err = group.Wait()
	if err != nil {
		finalLog.Error("Voice studio stopped: %v", err)

		return err
	}

	finalLog.System("Voice studio stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
