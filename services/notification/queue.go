package notification

import (
	"context"

	"medilink/models"
	"medilink/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// QueueNotifier hands dispatch alerts to the asynq queue so pushes never
// sit on the dispatch hot path. When enqueueing fails it falls back to a
// direct send rather than dropping the alert.
type QueueNotifier struct {
	Client   *asynq.Client
	Fallback NotificationService
	Logger   *zap.Logger
}

func (n *QueueNotifier) DispatchAlert(ctx context.Context, alert models.DispatchAlert) {
	task, opts, err := tasks.NewDispatchAlertTask(alert)
	if err == nil {
		if _, err = n.Client.EnqueueContext(ctx, task, opts...); err == nil {
			return
		}
	}
	n.Logger.Warn("failed to enqueue dispatch alert, sending inline",
		zap.String("requestId", alert.RequestID), zap.Error(err))
	if n.Fallback != nil {
		if err := n.Fallback.NotifyDispatchAlert(ctx, alert); err != nil {
			n.Logger.Error("inline dispatch alert failed",
				zap.String("requestId", alert.RequestID), zap.Error(err))
		}
	}
}
