// Package publisher handles publishing documentation events to RabbitMQ.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/loryanstrant/unifi-documenter/internal/model"
)

// Event types.
const (
	EventRunCompleted         = "documentation.run.completed"
	EventControllerDocumented = "documentation.controller.documented"
	EventControllerFailed     = "documentation.controller.failed"
)

const source = "/unifi-documenter"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends CloudEvents to RabbitMQ.
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// CloudEvent represents the CloudEvents 1.0 specification structure.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	ID              string      `json:"id"`
	Time            string      `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`
}

// RunCompletedData is the payload of a run completed event.
type RunCompletedData struct {
	RunID      string `json:"run_id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
	NextRun    string `json:"next_run,omitempty"`
}

// ControllerData is the payload of a per-controller event.
type ControllerData struct {
	RunID        string `json:"run_id"`
	Controller   string `json:"controller"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ErrorClass   string `json:"error_class,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

type message struct {
	routingKey string
	event      CloudEvent
}

// New creates a new Publisher connected to RabbitMQ and declares the
// exchange.
func New(url, exchange string, logger *zap.SugaredLogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Close closes the RabbitMQ connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Notify publishes one event per controller outcome and a run completed
// event.
func (p *Publisher) Notify(ctx context.Context, result model.RunResult) error {
	var errs []error
	for _, msg := range p.buildMessages(result) {
		if err := p.publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Publisher) buildMessages(result model.RunResult) []message {
	msgs := make([]message, 0, len(result.Outcomes)+1)
	for _, o := range result.Outcomes {
		eventType, key := EventControllerDocumented, "controller.documented"
		if !o.Succeeded {
			eventType, key = EventControllerFailed, "controller.failed"
		}
		msgs = append(msgs, message{
			routingKey: key,
			event: p.createEvent(eventType, ControllerData{
				RunID:        result.ID,
				Controller:   o.Controller,
				ArtifactPath: o.ArtifactPath,
				Reason:       o.Reason,
				ErrorClass:   string(o.ErrorClass),
				DurationMS:   o.Duration.Milliseconds(),
			}),
		})
	}

	data := RunCompletedData{
		RunID:      result.ID,
		StartedAt:  result.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: result.FinishedAt.UTC().Format(time.RFC3339),
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Total:      result.Total(),
	}
	if !result.NextRun.IsZero() {
		data.NextRun = result.NextRun.UTC().Format(time.RFC3339)
	}
	msgs = append(msgs, message{routingKey: "run.completed", event: p.createEvent(EventRunCompleted, data)})
	return msgs
}

func (p *Publisher) createEvent(eventType string, data interface{}) CloudEvent {
	return CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          source,
		ID:              uuid.New().String(),
		Time:            p.now().UTC().Format(time.RFC3339),
		DataContentType: "application/json",
		Data:            data,
	}
}

func (p *Publisher) publish(ctx context.Context, msg message) error {
	body, err := json.Marshal(msg.event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		msg.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/cloudevents+json",
			Body:        body,
			MessageId:   msg.event.ID,
			Timestamp:   p.now(),
		},
	)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("Event published",
		"type", msg.event.Type,
		"id", msg.event.ID,
		"routing_key", msg.routingKey,
	)

	return nil
}
