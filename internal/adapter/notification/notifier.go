package notification

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/queue"
	"github.com/gridfleet/gateway/internal/ports"
)

// alertSubject is the bus subject operator-facing alerts fan out on.
const alertSubject = "gateway.alerts"

// Notifier pushes operational alerts onto the message bus and,
// when configured, mails the on-call address. Delivery is best effort:
// a down mail provider must never surface into the protocol path.
type Notifier struct {
	mq    queue.MessageQueue
	email EmailSender
	to    string
	log   *zap.Logger
}

// EmailSender is satisfied by the SendGrid provider.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string, isHTML bool) error
}

func NewNotifier(mq queue.MessageQueue, email EmailSender, to string, log *zap.Logger) ports.Notifier {
	return &Notifier{
		mq:    mq,
		email: email,
		to:    to,
		log:   log,
	}
}

type alertEvent struct {
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *Notifier) Broadcast(ctx context.Context, subject, body string) {
	event := alertEvent{
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}

	if data, err := json.Marshal(event); err == nil {
		if err := n.mq.Publish(alertSubject, data); err != nil {
			n.log.Error("Failed to publish alert", zap.String("subject", subject), zap.Error(err))
		}
	}

	if n.email == nil || n.to == "" {
		return
	}
	if err := n.email.Send(ctx, n.to, "[gridfleet] "+subject, body, false); err != nil {
		n.log.Error("Failed to send alert email",
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}
