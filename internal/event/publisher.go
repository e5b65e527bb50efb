package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	streamName    = "LEVER_POOL_EVENTS"
	subjectPrefix = "lever.pool.events"
)

// Publisher forwards emitted events to NATS JetStream for downstream
// consumers. Subjects follow lever.pool.events.{type}. Publishing is
// decoupled from the emitting operation through a buffered channel; if the
// channel fills or a publish fails the event is dropped with a warning, since
// the event log remains the durable record.
type Publisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
	ch  chan Record
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:  js,
		log: log,
		ch:  make(chan Record, 1024),
	}
}

func (p *Publisher) Emit(rec Record) {
	select {
	case p.ch <- rec:
	default:
		p.log.Warn().Uint64("sequence", rec.Sequence).Str("type", string(rec.Type)).
			Msg("publish buffer full, dropping event")
	}
}

// Run drains the publish buffer until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-p.ch:
			if err := p.publish(ctx, rec); err != nil {
				p.log.Warn().Err(err).Uint64("sequence", rec.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, rec.Type)
	_, err = p.js.Publish(ctx, subject, data,
		jetstream.WithMsgID(strconv.FormatUint(rec.Sequence, 10)))
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
