// Package main is the entrypoint for the welcome email worker Lambda.
//
// The worker consumes welcome messages from the SQS welcome queue, composes
// the onboarding email and delivers it through SendGrid. It implements the
// SQS Lambda handler pattern where each invocation receives a batch of
// messages: records are processed concurrently and failures are reported via
// partial batch responses so SQS retries only the affected messages.
//
// Cold start:
//  1. Initialize the structured logger.
//  2. Load configuration and the AWS SDK config.
//  3. Initialize the SendGrid client, CloudWatch metrics and the mailer.
//  4. Register the handler and call lambda.Start.
//
// In local mode (APP_ENV=local) the worker reads a JSON SQS event from stdin
// instead of starting the Lambda runtime, enabling integration testing
// without the AWS Lambda RIE.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"golang.org/x/sync/errgroup"

	"lovebirdz/internal/config"
	"lovebirdz/internal/external"
	"lovebirdz/internal/notifications"
	"lovebirdz/internal/types"
)

// batchConcurrencyLimit bounds how many records of one SQS batch are
// processed in parallel. SendGrid tolerates this comfortably and it keeps a
// poison batch from saturating the provider.
const batchConcurrencyLimit = 4

// Mailer delivers a composed welcome email and returns the provider
// message ID.
type Mailer interface {
	Deliver(ctx context.Context, msg types.WelcomeMessage) (string, error)
}

// Metrics records delivery telemetry. Implemented by
// notifications.DeliveryMetrics in production.
type Metrics interface {
	RecordDelivery(ctx context.Context, result notifications.MetricResult)
	RecordLatency(ctx context.Context, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// Handler holds the dependencies for the email worker Lambda handler.
type Handler struct {
	mailer  Mailer
	metrics Metrics
	logger  *slog.Logger
}

// Handle processes an SQS event containing one or more welcome messages.
// Records are independent, so they are fanned out across a bounded errgroup
// and each failure is reported individually in batchItemFailures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var (
		mu       sync.Mutex
		response events.SQSEventResponse
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrencyLimit)

	for _, record := range sqsEvent.Records {
		record := record
		g.Go(func() error {
			if err := h.processRecord(gCtx, record); err != nil {
				h.logger.ErrorContext(gCtx, "failed to process SQS message",
					"sqs_message_id", record.MessageId,
					"error", err,
				)
				mu.Lock()
				response.BatchItemFailures = append(response.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
				)
				mu.Unlock()
			}
			// Failures are reported per record; never abort the batch.
			return nil
		})
	}

	_ = g.Wait()
	return response, nil
}

// processRecord handles a single SQS record. A returned error means the
// record should be redelivered; a nil return acknowledges it.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var msg types.WelcomeMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.ErrorContext(ctx, "failed to unmarshal welcome message",
			"sqs_message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure, redelivery cannot fix it. ACK and drop.
		h.metrics.RecordDelivery(ctx, notifications.MetricDropped)
		return nil
	}

	logger := h.logger.With(
		"message_id", msg.MessageID,
		"account_id", msg.AccountID,
		"trace_id", msg.TraceID,
	)
	logger.InfoContext(ctx, "processing welcome message")

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(sentAt))
		}
	}

	providerID, err := h.mailer.Deliver(ctx, msg)
	h.metrics.RecordLatency(ctx, time.Since(start))

	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && !appErr.Code.Retryable() {
			// Provider rejected the message outright. Redelivery would hit
			// the same rejection, so drop instead of looping the record.
			logger.ErrorContext(ctx, "welcome email rejected, dropping",
				"error", err,
			)
			h.metrics.RecordDelivery(ctx, notifications.MetricDropped)
			return nil
		}

		h.metrics.RecordDelivery(ctx, notifications.MetricFailed)
		return fmt.Errorf("deliver welcome email: %w", err)
	}

	h.metrics.RecordDelivery(ctx, notifications.MetricSuccess)
	logger.InfoContext(ctx, "welcome email sent",
		"provider_message_id", providerID,
	)
	return nil
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
// Used for the SQS SentTimestamp attribute to calculate queue lag.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("email worker initializing (cold start)")

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	sendgrid := external.NewSendGridClient(
		&http.Client{Timeout: 10 * time.Second},
		external.SendGridClientConfig{
			APIKey:      cfg.Email.SendGridAPIKey.Unmask(),
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      logger,
		},
	)

	metrics := notifications.NewDeliveryMetrics(cloudwatch.NewFromConfig(awsCfg), logger)
	mailer := notifications.NewWelcomeMailer(sendgrid, logger)

	handler := &Handler{
		mailer:  mailer,
		metrics: metrics,
		logger:  logger,
	}

	logger.Info("email worker initialized",
		"welcome_queue", cfg.AWS.WelcomeQueue,
		"from_address", cfg.Email.FromAddress,
	)

	if cfg.Environment == "local" {
		runLocal(handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// runLocal reads a JSON SQS event from stdin and runs the handler once.
// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | email-worker
func runLocal(handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
	if len(payload) == 0 {
		logger.Error("no input received on stdin")
		os.Exit(1)
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("failed to parse stdin as SQS event", "error", err)
		os.Exit(1)
	}

	response, err := handler.Handle(context.Background(), sqsEvent)
	if err != nil {
		logger.Error("handler execution failed", "error", err)
		os.Exit(1)
	}

	logger.Info("handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
}
