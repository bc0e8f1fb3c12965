package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"lecture-avatar/config"
	"lecture-avatar/constant"
	"lecture-avatar/entities"
)

// Publisher emits job lifecycle events for downstream consumers (LMS
// backends, notification services).
type Publisher interface {
	PublishJobEvent(ctx context.Context, job *entities.Job) error
}

// JobEvent is the wire payload for a job transition event.
type JobEvent struct {
	EventID     string `json:"eventId"`
	JobID       string `json:"jobId"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	VideoPath   string `json:"videoPath,omitempty"`
	ArtifactURL string `json:"artifactUrl,omitempty"`
}

type publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

// NewPublisher declares the job-events exchange and returns a publisher
// bound to it. The connection lifecycle stays with the caller.
func NewPublisher(ctx context.Context, conn *amqp.Connection, cfg *config.RabbitMQ) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		cfg.ExchangeName, // name
		cfg.Kind,         // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", cfg.ExchangeName).Msg("failed to declare exchange")
		return nil, err
	}

	return &publisher{conn: conn, cfg: cfg}, nil
}

// eventFor flattens a job into its wire representation.
func eventFor(job *entities.Job) JobEvent {
	event := JobEvent{
		EventID: uuid.NewString(),
		JobID:   job.ID,
		Kind:    string(job.Kind),
		Status:  string(job.Status),
		Message: job.Message,
	}
	if job.Result != nil {
		event.VideoPath = job.Result.VideoPath
		event.ArtifactURL = job.Result.ArtifactURL
	}
	return event
}

// routingKeyFor lets consumers bind to just the transitions they care
// about, e.g. "avatar.job.completed".
func routingKeyFor(status constant.TaskStatus) string {
	return "avatar.job." + string(status)
}

func (p *publisher) PublishJobEvent(ctx context.Context, job *entities.Job) error {
	event := eventFor(job)
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	routingKey := routingKeyFor(job.Status)
	err = ch.PublishWithContext(
		ctx,
		p.cfg.ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return err
	}

	zerolog.Ctx(ctx).Info().Str("routing_key", routingKey).Str("job_id", job.ID).Msg("published job event")
	return nil
}
