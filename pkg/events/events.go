package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/h1bconnect/account-service/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Account lifecycle subjects
const (
	AccountRegistered      = "account.registered"
	AccountVerified        = "account.verified"
	AccountLocked          = "account.locked"
	AccountPasswordChanged = "account.password_changed"
)

type AccountRegisteredEvent struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountVerifiedEvent struct {
	AccountID  string    `json:"account_id"`
	Email      string    `json:"email"`
	VerifiedAt time.Time `json:"verified_at"`
}

type AccountLockedEvent struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	LockUntil time.Time `json:"lock_until"`
	Attempts  int       `json:"attempts"`
}

type AccountPasswordChangedEvent struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	ChangedAt time.Time `json:"changed_at"`
}
