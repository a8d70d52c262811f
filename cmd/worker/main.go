package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"notary-signing-router/internal/config"
	"notary-signing-router/internal/eligibility"
	"notary-signing-router/internal/logging"
	"notary-signing-router/internal/notify"
	"notary-signing-router/internal/routing"
	"notary-signing-router/internal/storage"
	appTemporal "notary-signing-router/internal/temporal"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer store.Close()

	blob, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var matrix *eligibility.Matrix
	if cfg.StateMatrixObjectKey != "" {
		matrix, err = eligibility.LoadObject(ctx, blob, cfg.StateMatrixObjectKey)
	} else {
		matrix, err = eligibility.LoadFile(cfg.StateMatrixPath)
	}
	if err != nil {
		logger.Fatal("load state matrix", zap.Error(err))
	}

	engine, err := routing.NewEngine(matrix,
		routing.WithServiceRadius(cfg.MaxServiceRadiusMiles),
		routing.WithLogger(logger.Named("routing")))
	if err != nil {
		logger.Fatal("build routing engine", zap.Error(err))
	}

	var notifier notify.Notifier = notify.LogNotifier{Log: logger.Named("notify")}
	if cfg.NotificationsEnabled() {
		notifier = notify.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.TwilioBaseURL)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.NewTemporalLogger(logger.Named("temporal")),
	})
	if err != nil {
		logger.Fatal("connect temporal", zap.Error(err))
	}
	defer temporalClient.Close()

	activities := &appTemporal.Activities{
		Store:        store,
		Blob:         blob,
		Router:       engine,
		Notifier:     notifier,
		EscalationTo: cfg.EscalationNotifyTo,
		Log:          logger.Named("activities"),
	}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.SigningAssignmentWorkflow, workflow.RegisterOptions{Name: appTemporal.SigningAssignmentWorkflowName})
	w.RegisterActivity(activities.LoadOrderActivity)
	w.RegisterActivity(activities.FetchCandidatesActivity)
	w.RegisterActivity(activities.RouteOrderActivity)
	w.RegisterActivity(activities.EscalateOrderActivity)
	w.RegisterActivity(activities.OfferAssignmentActivity)
	w.RegisterActivity(activities.ResolveOfferActivity)
	w.RegisterActivity(activities.CommitAssignmentActivity)
	w.RegisterActivity(activities.NotifyAssignmentActivity)

	logger.Info("worker running",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.Int("states", matrix.Len()),
		zap.Bool("notifications", cfg.NotificationsEnabled()))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
}
