package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/bugtrackr/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubNotifier publishes bug events to a Google Cloud Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier constructs a Pub/Sub notifier from config, creating
// the bug-events topic if it does not exist.
func NewPubSubNotifier(ctx context.Context, cfg config.PubSubConfig) (*PubSubNotifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(Channel)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, Channel)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	return &PubSubNotifier{client: client, topic: topic}, nil
}

// Publish sends the event to the bug-events topic as JSON.
func (p *PubSubNotifier) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       body,
		Attributes: map[string]string{"kind": event.Kind},
	})
	_, err = result.Get(ctx)
	return err
}

// Close stops the topic's publish goroutines and closes the client.
func (p *PubSubNotifier) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
