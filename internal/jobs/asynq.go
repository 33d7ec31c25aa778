package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker constructs a worker that delivers queued mail through sender.
func NewWorker(redisOpts asynq.RedisClientOpt, sender Sender, logger *slog.Logger) *Worker {
	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeSendEmail, NewEmailHandler(sender))
	return &Worker{server: srv, mux: mux, logger: logger}
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Client submits mail jobs to the queue. It satisfies the same delivery
// interface as the SMTP mailer, so the auth service can use either.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// SendVerificationEmail enqueues a verification mail task.
func (c *Client) SendVerificationEmail(ctx context.Context, to, token, userID string) error {
	return c.enqueue(ctx, SendEmailPayload{To: to, Kind: MailVerification, Token: token, UserID: userID})
}

// SendPasswordResetEmail enqueues a password reset mail task.
func (c *Client) SendPasswordResetEmail(ctx context.Context, to, token, userID string) error {
	return c.enqueue(ctx, SendEmailPayload{To: to, Kind: MailPasswordReset, Token: token, UserID: userID})
}

func (c *Client) enqueue(ctx context.Context, payload SendEmailPayload) error {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
