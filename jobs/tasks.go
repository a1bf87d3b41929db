package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSettlementRedrive retries failed post-settlement followup steps.
	TaskSettlementRedrive = "settlement:redrive"
)

// SettlementRedrivePayload bounds one re-drive pass.
type SettlementRedrivePayload struct {
	Limit int `json:"limit"`
}

// NewSettlementRedriveTask constructs the re-drive task.
func NewSettlementRedriveTask(payload SettlementRedrivePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementRedrive, data), nil
}
