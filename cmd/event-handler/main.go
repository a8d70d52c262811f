package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"notary-signing-router/internal/config"
	"notary-signing-router/internal/events"
	"notary-signing-router/internal/logging"
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

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
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

	source := events.NewMinioOrderEventSource(minioClient, cfg.MinioBucket, storage.OrderSnapshotName)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("event-handler listening for order snapshots", zap.String("bucket", cfg.MinioBucket))
	err = source.Run(ctx, func(parent context.Context, event events.OrderEvent) error {
		workflowID := appTemporal.WorkflowID(cfg.WorkflowIDPrefix, event.OrderID)
		execCtx, cancel := context.WithTimeout(parent, 15*time.Second)
		defer cancel()

		opts := appTemporal.StartOptions(cfg.WorkflowIDPrefix, cfg.TemporalTaskQueue, event.OrderID)
		_, startErr := temporalClient.ExecuteWorkflow(execCtx, opts, appTemporal.SigningAssignmentWorkflowName, appTemporal.WorkflowInput{
			OrderID:      event.OrderID,
			MaxOffers:    cfg.MaxOffers,
			OfferTimeout: cfg.OfferTimeout,
		})
		if startErr != nil {
			var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(startErr, &alreadyStarted) {
				logger.Info("workflow already started", zap.String("object", event.ObjectKey), zap.String("workflow_id", workflowID))
				return nil
			}
			return fmt.Errorf("start workflow for object %s: %w", event.ObjectKey, startErr)
		}

		logger.Info("started workflow", zap.String("workflow_id", workflowID), zap.String("object", event.ObjectKey))
		return nil
	})
	if err != nil {
		logger.Fatal("event-handler stopped with error", zap.Error(err))
	}
}
