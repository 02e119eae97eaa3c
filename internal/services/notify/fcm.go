// Package notify pushes operator feedback that needs attention to the
// operator's device through Firebase Cloud Messaging.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"fieldcollect-backend/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Sender is the part of the messaging client the notifier uses
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier sends feedback pushes
type FCMNotifier struct {
	client Sender
}

// NewFCMNotifier creates a notifier from a credentials file
func NewFCMNotifier(ctx context.Context, credentialsFile string) (*FCMNotifier, error) {
	return newFromOption(ctx, option.WithCredentialsFile(credentialsFile))
}

// NewFCMNotifierFromBase64 creates a notifier from base64-encoded credentials
// This is useful for cloud deployments where you can't upload files easily
func NewFCMNotifierFromBase64(ctx context.Context, credentialsBase64 string) (*FCMNotifier, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}
	return newFromOption(ctx, option.WithCredentialsJSON(credentialsJSON))
}

func newFromOption(ctx context.Context, opt option.ClientOption) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMNotifier{client: client}, nil
}

// NewNotifier wraps an existing sender
func NewNotifier(sender Sender) *FCMNotifier {
	return &FCMNotifier{client: sender}
}

// ShouldPush reports whether a feedback category warrants a device push.
// Success and info feedback is only shown in-app.
func ShouldPush(category models.FeedbackCategory) bool {
	switch category {
	case models.FeedbackWarning, models.FeedbackError, models.FeedbackOffline:
		return true
	}
	return false
}

// NotifyFeedback pushes fb to token; categories ShouldPush rejects are skipped
func (n *FCMNotifier) NotifyFeedback(ctx context.Context, token, sessionID string, fb models.FeedbackEvent) error {
	if token == "" || !ShouldPush(fb.Category) {
		return nil
	}

	response, err := n.client.Send(ctx, feedbackMessage(token, sessionID, fb))
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"category":   fb.Category,
		"response":   response,
	}).Info("✅ FCM feedback notification sent")
	return nil
}

func feedbackMessage(token, sessionID string, fb models.FeedbackEvent) *messaging.Message {
	data := map[string]string{
		"type":       "feedback",
		"session_id": sessionID,
		"category":   string(fb.Category),
		"sound":      fb.Options.Cue.Sound,
	}
	if fb.Options.BinID != "" {
		data["bin_id"] = fb.Options.BinID
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: titleFor(fb.Category),
			Body:  fb.Message,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}
}

func titleFor(category models.FeedbackCategory) string {
	switch category {
	case models.FeedbackError:
		return "Collection Error"
	case models.FeedbackOffline:
		return "Location Unavailable"
	default:
		return "Attention Needed"
	}
}
