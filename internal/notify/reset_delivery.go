// Package notify hands password-reset tokens to the delivery channel. Mail
// and SMS sending are external collaborators; this package only publishes
// the message they consume. Errors are logged and returned so callers can
// ignore failures without interrupting the main request flow.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ResetQueue is the durable queue the external mailer consumes.
const ResetQueue = "password.reset"

// PasswordResetMessage carries the plaintext reset token to the delivery
// collaborator. The token exists nowhere else in plaintext; the store keeps
// only its hash.
type PasswordResetMessage struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ResetDelivery is implemented by whatever channel carries reset tokens to
// the user.
type ResetDelivery interface {
	DeliverResetToken(ctx context.Context, msg PasswordResetMessage) error
}

// AMQResetPublisher publishes reset messages to RabbitMQ. It dials per
// publish and never panics; any error is logged and returned so the caller
// can choose to ignore it. Messages are marked persistent.
type AMQResetPublisher struct {
	url string
	log *logrus.Logger
}

func NewAMQResetPublisher(url string, log *logrus.Logger) *AMQResetPublisher {
	return &AMQResetPublisher{url: url, log: log}
}

func (p *AMQResetPublisher) DeliverResetToken(ctx context.Context, msg PasswordResetMessage) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(ResetQueue, true, false, false, false, nil); err != nil {
		p.log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ResetQueue, false, false, pub); err != nil {
		p.log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

// LogResetDelivery is the fallback when no broker is configured. It records
// that a token was issued without ever writing the token itself.
type LogResetDelivery struct {
	Log *logrus.Logger
}

func (d LogResetDelivery) DeliverResetToken(_ context.Context, msg PasswordResetMessage) error {
	d.Log.WithField("email", msg.Email).Info("password reset token issued (no delivery channel configured)")
	return nil
}
