package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayush/medical-report-worker/internal/models"
	"github.com/ayush/medical-report-worker/internal/queue"
)

// Consumer delivers request messages to a handler.
type Consumer interface {
	Consume(ctx context.Context, h queue.Handler) error
}

// ResponsePublisher sends response messages.
type ResponsePublisher interface {
	PublishResponse(ctx context.Context, msg models.ResponseMessage) error
}

// Runner connects the request queue to a Processor and publishes exactly
// one response per decodable request.
type Runner struct {
	consumer  Consumer
	publisher ResponsePublisher
	proc      *Processor
	log       zerolog.Logger
	now       func() time.Time
}

func NewRunner(consumer Consumer, publisher ResponsePublisher, proc *Processor, log zerolog.Logger) *Runner {
	return &Runner{
		consumer:  consumer,
		publisher: publisher,
		proc:      proc,
		log:       log.With().Str("component", "runner").Logger(),
		now:       time.Now,
	}
}

// Run consumes until ctx is cancelled. A job in progress is finished before
// Run returns.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().Msg("worker started")
	err := r.consumer.Consume(ctx, r.Handle)
	r.log.Info().Msg("worker stopped")
	return err
}

// Handle processes one message. A non-nil error means the response could
// not be published and the message should be delivered again.
func (r *Runner) Handle(ctx context.Context, msg queue.Message) error {
	jobCtx := context.WithoutCancel(ctx)

	res, err := r.proc.Process(jobCtx, msg.Body)
	if err != nil {
		r.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("undecodable request acknowledged without response")
		return nil
	}

	resp := res.Response(r.now())
	if err := r.publisher.PublishResponse(jobCtx, resp); err != nil {
		return fmt.Errorf("publish response for %s: %w", res.RequestID, err)
	}
	return nil
}
