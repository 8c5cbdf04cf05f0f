// README: Kafka publisher for match feed updates, wrapped in a CloudEvent-style envelope.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"greenpool/internal/modules/matching"
	"greenpool/internal/types"
)

const (
	eventSource = "greenpool.matching"

	TypeMatchesUpdated = "greenpool.matches.updated"
	TypeFeedFailed     = "greenpool.matches.failed"
)

// Envelope is the message value written to Kafka.
type Envelope struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

// MatchesPayload is the data of a TypeMatchesUpdated event.
type MatchesPayload struct {
	SubjectRouteID types.ID              `json:"subjectRouteId"`
	Matches        []matching.RouteMatch `json:"matches"`
	Summary        matching.Summary      `json:"summary"`
}

// FailurePayload is the data of a TypeFeedFailed event.
type FailurePayload struct {
	SubjectRouteID types.ID `json:"subjectRouteId"`
	Error          string   `json:"error"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes feed updates keyed by subject route, so updates for one
// route stay ordered on one partition.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(writer *kafka.Writer) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, u matching.Update) error {
	msg, err := encodeUpdate(u)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing matches for %s: %w", u.SubjectRouteID, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeUpdate(u matching.Update) (kafka.Message, error) {
	var (
		eventType string
		data      any
	)
	if u.Err != nil {
		eventType = TypeFeedFailed
		data = FailurePayload{SubjectRouteID: u.SubjectRouteID, Error: u.Err.Error()}
	} else {
		eventType = TypeMatchesUpdated
		data = MatchesPayload{
			SubjectRouteID: u.SubjectRouteID,
			Matches:        u.Matches,
			Summary:        matching.Summarize(u.Matches),
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	value, err := json.Marshal(Envelope{
		ID:      uuid.NewString(),
		Source:  eventSource,
		Type:    eventType,
		Subject: string(u.SubjectRouteID),
		Time:    at.UTC(),
		Data:    raw,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(u.SubjectRouteID),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "ce_type", Value: []byte(eventType)},
		},
	}, nil
}
