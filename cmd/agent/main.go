package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	apihttp "ozzus/robot-agent/internal/api/http"
	"ozzus/robot-agent/internal/backend"
	"ozzus/robot-agent/internal/checks"
	"ozzus/robot-agent/internal/config"
	"ozzus/robot-agent/internal/control"
	"ozzus/robot-agent/internal/discovery"
	"ozzus/robot-agent/internal/domain"
	"ozzus/robot-agent/internal/lib/logger/sl"
	"ozzus/robot-agent/internal/lib/logger/slogpretty"
	"ozzus/robot-agent/internal/repository"
	"ozzus/robot-agent/internal/repository/kafka"
	"ozzus/robot-agent/internal/service"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	version = "1.0.0"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (default ./config/local.yaml)")
	pflag.Parse()

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log := setupLogger(cfg.Env)

	log.Info("starting application",
		"env", cfg.Env,
		"agent", cfg.Agent.Name,
		"site", cfg.Agent.Site,
	)

	backendClient, err := backend.NewClient(cfg.Backend.URL, cfg.Agent.Name, cfg.Agent.Token)
	if err != nil {
		log.Error("failed to initialize backend client", sl.Err(err))
		os.Exit(1)
	}

	log.Info("initializing Kafka components")

	taskConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Tasks, cfg.Agent.Name, log)
	defer taskConsumer.Close()

	resultsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Results)
	defer resultsProducer.Close()

	logsProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Logs)
	defer logsProducer.Close()

	taskRepo := repository.NewKafkaTaskRepository(taskConsumer, log)
	resultRepo := repository.NewKafkaResultRepository(resultsProducer, logsProducer, log)

	agentService := service.NewAgentService(
		taskRepo,
		resultRepo,
		service.Config{
			AgentID:       cfg.Agent.Name,
			PollInterval:  cfg.Agent.PollInterval,
			AllowEviction: cfg.Checks.AllowEviction,
		},
		log,
	)

	log.Debug("initializing checkers")
	registerCheckers(agentService, cfg, log)

	browser := discovery.NewBrowser(discovery.Config{
		Service: cfg.Discovery.Service,
		Domain:  cfg.Discovery.Domain,
		Timeout: cfg.Discovery.Timeout,
	}, log)

	router := apihttp.NewRouter(
		apihttp.NewHealthController(agentService, cfg.Agent.Name, version),
		apihttp.NewCheckController(agentService, browser),
		log,
	)

	config.Watch(log, func(updated *config.Config) {
		agentService.SetDefaultEviction(updated.Checks.AllowEviction)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := taskConsumer.CheckConnection(pingCtx); err != nil {
		log.Warn("kafka is not reachable yet", "brokers", cfg.Kafka.Brokers, sl.Err(err))
	}
	pingCancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		registerAndHeartbeat(gctx, backendClient, agentService, cfg, log)
		return nil
	})

	g.Go(func() error {
		log.Info("starting agent service",
			"backend", cfg.Backend.URL,
			"kafka_brokers", cfg.Kafka.Brokers,
		)
		return agentService.Start(gctx)
	})

	httpServer := &nethttp.Server{
		Addr:              ":" + cfg.Server.HealthPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("starting health server", "port", cfg.Server.HealthPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down agent...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("application started and ready",
		"health_port", cfg.Server.HealthPort,
		"agent_id", cfg.Agent.Name,
	)

	if err := g.Wait(); err != nil {
		log.Error("agent stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("agent stopped gracefully")
}

func registerCheckers(agentService *service.AgentService, cfg *config.Config, log *slog.Logger) {
	agentService.RegisterChecker(domain.TaskTypeMaster, checks.NewMasterChecker(
		checks.WithCallTimeout(cfg.Checks.MasterTimeout),
		checks.WithMasterLogger(log),
	))

	agentService.RegisterChecker(domain.TaskTypeControl, checks.NewControlChecker(
		control.NewClient(cfg.Checks.ControlTimeout),
		checks.WithEvictionHandler(agentService.DecideEviction),
		checks.WithStartHandler(agentService.NotifyStarting),
		checks.WithAutoStart(cfg.Checks.AutoStart),
		checks.WithPollInterval(cfg.Checks.PollInterval),
		checks.WithMaxPolls(cfg.Checks.MaxPolls),
		checks.WithControlLogger(log),
	))

	agentService.RegisterChecker(domain.TaskTypePing, checks.NewPingChecker(
		cfg.Checks.PingTimeout,
		cfg.Checks.PingCount,
		cfg.Checks.PingPrivileged,
		log,
	))
}

// registerAndHeartbeat obtains a token when none is configured, then
// heartbeats until ctx is done.
func registerAndHeartbeat(ctx context.Context, client *backend.Client, agentService *service.AgentService, cfg *config.Config, log *slog.Logger) {
	log = log.With("component", "backend")

	for !client.Registered() {
		regCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := client.Register(regCtx, cfg.Agent.Site, agentService.Checkers())
		cancel()
		if err == nil {
			log.Info("agent registered", "backend", cfg.Backend.URL)
			break
		}

		log.Warn("agent registration failed", sl.Err(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Backend.HeartbeatInterval):
		}
	}

	client.RunHeartbeat(ctx, cfg.Backend.HeartbeatInterval, agentService.GetStatus, log)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
