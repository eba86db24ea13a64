// Package notify turns account events into outbound mail. Events are queued
// on the outbox and delivered by a worker, so a crash between the login and
// the send does not lose the mail.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-tenant-auth/accounts"
	"github.com/jrsteele09/go-tenant-auth/outbox"
	pkgerrors "github.com/pkg/errors"
)

// WelcomeKind is the outbox task kind carrying a WelcomeEvent.
const WelcomeKind = "send_welcome_mail"

type WelcomeEvent struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Queue is the part of the outbox the notifier writes to.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) (*outbox.Task, error)
}

// Notifier queues account events for delivery.
type Notifier struct {
	queue Queue
}

func NewNotifier(queue Queue) (*Notifier, error) {
	if queue == nil {
		return nil, errors.New("[NewNotifier] queue is required")
	}
	return &Notifier{queue: queue}, nil
}

func (n *Notifier) NotifyWelcome(ctx context.Context, account accounts.Account) error {
	event := WelcomeEvent{UserID: account.ID, Email: account.Email, Name: account.Name}
	if _, err := n.queue.Enqueue(ctx, WelcomeKind, event); err != nil {
		return pkgerrors.Wrap(err, "[Notifier.NotifyWelcome] Enqueue")
	}
	return nil
}

// WelcomeHandler delivers queued welcome events through mailer. An event
// without an address can never be delivered and is dropped.
func WelcomeHandler(mailer Mailer) outbox.Handler {
	return func(ctx context.Context, payload []byte) error {
		var event WelcomeEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return pkgerrors.Wrap(err, "[WelcomeHandler] decode")
		}
		if event.Email == "" {
			return nil
		}
		return mailer.Send(ctx, WelcomeMessage(event))
	}
}

func WelcomeMessage(event WelcomeEvent) Message {
	name := event.Name
	if name == "" {
		name = event.Email
	}
	return Message{
		To:      event.Email,
		Subject: "Welcome aboard",
		Body:    fmt.Sprintf("Hello %s,\n\nThanks for signing in. Your account is ready to use.\n", name),
	}
}
