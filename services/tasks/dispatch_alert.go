package tasks

import (
	"encoding/json"

	"medilink/models"

	"github.com/hibiken/asynq"
)

const TypeDispatchAlert = "dispatch:alert"

func NewDispatchAlertTask(alert models.DispatchAlert) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(alert)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeDispatchAlert, b)
	opts := []asynq.Option{asynq.MaxRetry(3)}

	return task, opts, nil
}
