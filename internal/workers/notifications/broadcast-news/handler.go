// internal/workers/notifications/broadcast-news/handler.go
package broadcastnews

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "league-notifications/internal/common/errors"
	"league-notifications/internal/common/logger"
	"league-notifications/internal/common/metrics"
	"league-notifications/internal/common/validation"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/decision"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "broadcast-news"
)

// Broadcaster is satisfied by *decision.Engine.
type Broadcaster interface {
	BroadcastNews(ctx context.Context, kind decision.NewsKind, message string) (*decision.BroadcastResult, error)
	SendNewsToUser(ctx context.Context, userID string, kind decision.NewsKind, message string) (*models.Notification, error)
}

type Handler struct {
	config       *Config
	broadcaster  Broadcaster
	schemas      *validation.SchemaSet
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, broadcaster Broadcaster, log logger.Logger) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	schemas := validation.NewSchemaSet()
	if err := schemas.Register(TaskType, inputSchema); err != nil {
		return nil, err
	}

	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		broadcaster:  broadcaster,
		schemas:      schemas,
		errorHandler: apperrors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(job.Variables), &raw); err != nil {
		return nil, apperrors.NewInvalidBroadcastError(fmt.Sprintf("parse input: %v", err))
	}

	result, err := h.schemas.Validate(TaskType, raw)
	if err != nil {
		return nil, apperrors.NewInvalidBroadcastError(err.Error())
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidBroadcastError(result.Error())
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		return nil, apperrors.NewInvalidBroadcastError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute runs one broadcast. Partial failures complete the job with the
// failed users listed in the output; only a failure to start is an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	kind, err := decision.ParseNewsKind(input.Kind)
	if err != nil {
		return nil, err
	}

	if input.UserID != "" {
		return h.executeForUser(ctx, input.UserID, kind, input.Message)
	}

	result, err := h.broadcaster.BroadcastNews(ctx, kind, input.Message)
	if result == nil {
		return nil, err
	}
	if err != nil {
		h.logger.Warn("broadcast completed with failures", map[string]interface{}{
			"kind":   string(kind),
			"failed": result.Failed,
		})
	}

	return &Output{
		Kind:        string(kind),
		Attempted:   result.Attempted,
		Delivered:   result.Delivered,
		Skipped:     result.Skipped,
		Failed:      result.Failed,
		FailedUsers: result.FailedUsers,
	}, nil
}

func (h *Handler) executeForUser(ctx context.Context, userID string, kind decision.NewsKind, message string) (*Output, error) {
	n, err := h.broadcaster.SendNewsToUser(ctx, userID, kind, message)
	if err != nil {
		return nil, err
	}

	out := &Output{Kind: string(kind), Attempted: 1}
	if n == nil {
		out.Skipped = 1
		return out, nil
	}
	out.Delivered = 1
	out.NotificationID = n.ID
	return out, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":    job.Key,
		"kind":      output.Kind,
		"delivered": output.Delivered,
		"failed":    output.Failed,
	})
}
