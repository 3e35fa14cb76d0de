// internal/notifications/delivery/push.go
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"league-notifications/internal/models"
)

const MessageShowNotification = "SHOW_NOTIFICATION"

// ErrNoController means no push layer is currently attached for the user.
var ErrNoController = errors.New("no push controller attached")

// PushMessage is the service-worker message that asks the OS to render a notification.
type PushMessage struct {
	Type    string      `json:"type"`
	Title   string      `json:"title"`
	Options PushOptions `json:"options"`
}

type PushOptions struct {
	Body string                 `json:"body"`
	Icon string                 `json:"icon"`
	Tag  string                 `json:"tag"`
	Data map[string]interface{} `json:"data"`
}

// NewPushMessage builds the message for n. The notification id doubles as the tag so
// repeated deliveries of one row replace each other on the device.
func NewPushMessage(n models.Notification, icon string) PushMessage {
	url := "/"
	if n.ActionURL != nil && *n.ActionURL != "" {
		url = *n.ActionURL
	}
	return PushMessage{
		Type:  MessageShowNotification,
		Title: n.Title,
		Options: PushOptions{
			Body: n.Message,
			Icon: icon,
			Tag:  n.ID,
			Data: map[string]interface{}{
				"notificationId": n.ID,
				"category":       string(n.Category),
				"priority":       string(n.Priority),
				"url":            url,
			},
		},
	}
}

// PushForwarder hands a message to the OS-level notification layer of a user.
type PushForwarder interface {
	Forward(ctx context.Context, userID string, msg PushMessage) error
}

// SNSPublisher is satisfied by *aws.SNSClient.
type SNSPublisher interface {
	PublishToEndpoint(ctx context.Context, endpointArn, subject, message string) (string, error)
}

// EndpointStore resolves stored per-user values such as the platform endpoint ARN.
type EndpointStore interface {
	Get(ctx context.Context, userID, name string) (string, bool, error)
}

// SNSForwarder publishes push messages to the user's SNS platform endpoint.
type SNSForwarder struct {
	publisher SNSPublisher
	endpoints EndpointStore
	attribute string
}

// NewSNSForwarder reads the endpoint ARN from the attribute key of the endpoint store.
func NewSNSForwarder(publisher SNSPublisher, endpoints EndpointStore, attribute string) *SNSForwarder {
	return &SNSForwarder{publisher: publisher, endpoints: endpoints, attribute: attribute}
}

func (f *SNSForwarder) Forward(ctx context.Context, userID string, msg PushMessage) error {
	arn, ok, err := f.endpoints.Get(ctx, userID, f.attribute)
	if err != nil {
		return fmt.Errorf("resolve endpoint: %w", err)
	}
	if !ok || arn == "" {
		return ErrNoController
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push message: %w", err)
	}
	if _, err := f.publisher.PublishToEndpoint(ctx, arn, msg.Title, string(body)); err != nil {
		return fmt.Errorf("publish to %s: %w", arn, err)
	}
	return nil
}
