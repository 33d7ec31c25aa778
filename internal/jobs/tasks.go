package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional email delivery.
	TaskTypeSendEmail = "mail:send"
)

// Mail kinds carried in the task payload.
const (
	MailVerification  = "verification"
	MailPasswordReset = "password_reset"
)

// SendEmailPayload describes the email to deliver.
type SendEmailPayload struct {
	To     string `json:"to"`
	Kind   string `json:"kind"`
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Sender is the delivery backend the worker hands tasks to.
type Sender interface {
	SendVerificationEmail(ctx context.Context, to, token, userID string) error
	SendPasswordResetEmail(ctx context.Context, to, token, userID string) error
}

// EmailHandler processes TaskTypeSendEmail tasks.
type EmailHandler struct {
	sender Sender
}

// NewEmailHandler wires the delivery backend into a task handler.
func NewEmailHandler(sender Sender) *EmailHandler {
	return &EmailHandler{sender: sender}
}

// ProcessTask implements asynq.Handler.
func (h *EmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	switch payload.Kind {
	case MailVerification:
		return h.sender.SendVerificationEmail(ctx, payload.To, payload.Token, payload.UserID)
	case MailPasswordReset:
		return h.sender.SendPasswordResetEmail(ctx, payload.To, payload.Token, payload.UserID)
	default:
		return asynq.SkipRetry
	}
}
