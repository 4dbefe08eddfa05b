// cmd/wizard-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-wizard/internal/common/auth"
	commonaws "loan-wizard/internal/common/aws"
	"loan-wizard/internal/common/camunda"
	"loan-wizard/internal/common/config"
	"loan-wizard/internal/common/database"
	"loan-wizard/internal/common/extraction"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/observability"
	"loan-wizard/internal/wizard/decision"
	"loan-wizard/internal/wizard/session"
	"loan-wizard/pkg/registry"

	ala "loan-wizard/internal/workers/loan/assess-loan-application"
	eld "loan-wizard/internal/workers/loan/extract-loan-document"
	nld "loan-wizard/internal/workers/loan/notify-loan-decision"
	rld "loan-wizard/internal/workers/loan/record-loan-decision"
	sls "loan-wizard/internal/workers/loan/submit-loan-session"
	vld "loan-wizard/internal/workers/loan/validate-loan-documents"
	vla "loan-wizard/internal/workers/loan/verify-loan-applicant"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting wizard manager...",
		zap.String("decisionStrategy", cfg.Decision.Strategy),
		zap.String("identityMode", cfg.Wizard.IdentityMode),
	)

	obs := observability.New("wizard-manager", log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(ctx)
	}()

	ctx := context.Background()

	// --- Zeebe ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(camunda.ConfigFromApp(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.EnsureDecisionTable(ctx); err != nil {
			zapLog.Fatal("decision schema failed", zap.Error(err))
		}
	}

	// --- Redis ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Elasticsearch (optional decision index) ---
	var decisionIndexer rld.Indexer
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, decisions will not be indexed", zap.Error(err))
		} else {
			decisionIndexer = esClient
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Collaborators ---
	procedure, err := decision.NewFromConfig(cfg, log)
	if err != nil {
		zapLog.Fatal("decision procedure init failed", zap.Error(err))
	}

	extractor := extraction.NewClient(cfg.APIs.Extraction.BaseURL, config.GetDuration(cfg.APIs.Extraction.Timeout))

	var verifier session.IdentityVerifier
	switch cfg.Wizard.IdentityMode {
	case config.IdentityModeSimulated:
		verifier = auth.NewSimulatedVerifier(config.GetDuration(cfg.Wizard.SimulatedVerificationDelayMS))
	default:
		verifier = auth.NewKeycloakVerifier(
			cfg.Auth.Keycloak.URL,
			cfg.Auth.Keycloak.Realm,
			cfg.Auth.Keycloak.ClientID,
			cfg.Auth.Keycloak.ClientSecret,
		)
	}

	deps := session.Deps{
		Verifier:      verifier,
		Extractor:     extractor,
		Decider:       procedure,
		Store:         session.NewRedisSnapshotStore(redis.Client, cfg.Wizard.SessionTTL),
		Logger:        log,
		SubmitTimeout: config.GetDuration(cfg.Decision.AssessmentTimeout),
	}

	var (
		emailSender nld.EmailSender
		smsSender   nld.SMSSender
	)
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		awsCfg, err := commonaws.LoadConfig(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		if cfg.Notifications.Email.Enabled {
			emailSender = commonaws.NewSESClient(awsCfg)
		}
		if cfg.Notifications.SMS.Enabled {
			smsSender = commonaws.NewSNSClient(awsCfg)
		}
	}

	zapLog.Info("All external service clients initialized",
		zap.String("decisionStrategy", procedure.Strategy()),
	)

	// --- Workers ---
	workerTimeout := func(taskType string) time.Duration {
		return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
	}
	failOnError := func(taskType string) bool {
		return config.GetWorkerConfig(cfg, taskType).FailOnError
	}

	verifyHandler := vla.NewHandler(&vla.Config{Timeout: workerTimeout(vla.TaskType)}, deps, log)
	extractHandler := eld.NewHandler(&eld.Config{
		Timeout:        workerTimeout(eld.TaskType),
		RetryOnFailure: failOnError(eld.TaskType),
	}, extractor, log)
	validateHandler := vld.NewHandler(&vld.Config{
		Timeout:          workerTimeout(vld.TaskType),
		FailOnIncomplete: failOnError(vld.TaskType),
	}, log)
	submitHandler := sls.NewHandler(&sls.Config{
		Timeout:     workerTimeout(sls.TaskType),
		FailOnError: failOnError(sls.TaskType),
	}, deps, log)
	assessHandler := ala.NewHandler(&ala.Config{Timeout: workerTimeout(ala.TaskType)}, procedure, log)
	recordHandler := rld.NewHandler(&rld.Config{
		Timeout:       workerTimeout(rld.TaskType),
		DecisionIndex: cfg.Database.Elasticsearch.DecisionIndex,
	}, pg.DB, decisionIndexer, log)
	notifyHandler := nld.NewHandler(&nld.Config{
		EmailEnabled:   cfg.Notifications.Email.Enabled,
		SMSEnabled:     cfg.Notifications.SMS.Enabled,
		FromEmail:      cfg.Notifications.Email.FromEmail,
		RetryOnFailure: failOnError(nld.TaskType),
		Timeout:        workerTimeout(nld.TaskType),
	}, emailSender, smsSender, log)

	manager := camunda.NewManager(camundaClient.Zeebe(), obs, log)
	registrations := []struct {
		taskType string
		handle   worker.JobHandler
	}{
		{vla.TaskType, verifyHandler.Handle},
		{eld.TaskType, extractHandler.Handle},
		{vld.TaskType, validateHandler.Handle},
		{sls.TaskType, submitHandler.Handle},
		{ala.TaskType, assessHandler.Handle},
		{rld.TaskType, recordHandler.Handle},
		{nld.TaskType, notifyHandler.Handle},
	}
	for _, r := range registrations {
		if err := manager.Register(r.taskType, config.GetWorkerConfig(cfg, r.taskType), r.handle); err != nil {
			zapLog.Fatal("worker registration failed", zap.String("taskType", r.taskType), zap.Error(err))
		}
	}
	zapLog.Info("Workers registered", zap.Strings("taskTypes", manager.TaskTypes()))

	if reg, err := registry.LoadRegistry(cfg.App.ActivityRegistry); err != nil {
		zapLog.Warn("activity registry not loaded", zap.String("path", cfg.App.ActivityRegistry), zap.Error(err))
	} else if missing := reg.Missing(manager.TaskTypes()); len(missing) > 0 {
		zapLog.Warn("workers missing from activity registry", zap.Strings("taskTypes", missing))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := readiness(r.Context(), camundaClient, pg, redis); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Wizard manager stopped")
}

func readiness(ctx context.Context, zeebe *camunda.Client, pg *database.PostgresClient, redis *database.RedisClient) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := zeebe.HealthCheck(ctx); err != nil {
		return fmt.Errorf("zeebe: %w", err)
	}
	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := redis.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
