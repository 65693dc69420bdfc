package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/roshanis/shopagent/internal/progress"
)

// PubSubSink publishes each lifecycle event as a JSON message so other
// systems can follow evaluations without polling the service themselves.
type PubSubSink struct {
	topic  *pubsub.Topic
	client *pubsub.Client
}

// eventMessage is the published payload.
type eventMessage struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Status    string    `json:"status,omitempty"`
	Overall   float64   `json:"overall"`
	DurMillis int64     `json:"dur_ms,omitempty"`
	Note      string    `json:"note,omitempty"`
	TS        time.Time `json:"ts"`
}

// NewPubSubSink publishes to an existing topic handle. The caller keeps
// ownership of the client the topic came from.
func NewPubSubSink(topic *pubsub.Topic) *PubSubSink {
	return &PubSubSink{topic: topic}
}

// DialPubSubSink connects to projectID and publishes to topicID. The client
// is closed with the sink.
func DialPubSubSink(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	return &PubSubSink{topic: client.Topic(topicID), client: client}, nil
}

// Consume publishes the batch and waits for every message to be accepted.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s.topic == nil {
		return errors.New("pubsub topic is not configured")
	}
	results := make([]*pubsub.PublishResult, 0, len(batch))
	for _, evt := range batch {
		data, err := json.Marshal(eventMessage{
			JobID:     evt.JobID,
			Stage:     string(evt.Stage),
			Status:    string(evt.Status),
			Overall:   evt.Overall,
			DurMillis: evt.Dur.Milliseconds(),
			Note:      evt.Note,
			TS:        evt.TS.UTC(),
		})
		if err != nil {
			return fmt.Errorf("marshal progress event: %w", err)
		}
		results = append(results, s.topic.Publish(ctx, &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"job_id": evt.JobID,
				"stage":  string(evt.Stage),
			},
		}))
	}

	var errs []error
	for _, res := range results {
		if _, err := res.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish progress events: %w", errors.Join(errs...))
	}
	return nil
}

// Close flushes pending messages and releases the client if the sink owns it.
func (s *PubSubSink) Close(context.Context) error {
	if s.topic != nil {
		s.topic.Stop()
	}
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
