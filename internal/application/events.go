package application

import (
	"context"
	"expvar"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/tourauth/internal/domain/entity"
)

type EventType string

const (
	EventSignup             EventType = "signup"
	EventEmailConfirmed     EventType = "email_confirmed"
	EventConfirmationResent EventType = "confirmation_resent"
	EventLoginSucceeded     EventType = "login_succeeded"
	EventLoginFailed        EventType = "login_failed"
	EventAccountLocked      EventType = "account_locked"
	EventUnlockIssued       EventType = "unlock_issued"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventResetRequested     EventType = "reset_requested"
	EventPasswordReset      EventType = "password_reset"
	EventPasswordUpdated    EventType = "password_updated"
	EventDeliveryFailed     EventType = "delivery_failed"
)

// SecurityEvent is published for every account transition. It carries no
// password or token material.
type SecurityEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher is satisfied by helpers.RabbitPublisher.
type EventPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// authMetrics backs the auth counters served on /debug/vars.
var authMetrics = expvar.NewMap("auth")

func newEvent(typ EventType, u *entity.User, now time.Time) SecurityEvent {
	ev := SecurityEvent{ID: uuid.NewString(), Type: typ, OccurredAt: now.UTC()}
	if u != nil {
		ev.UserID = u.ID
		ev.Email = u.Email
		if u.State != nil {
			ev.Status = string(u.State.Status())
		}
	}
	return ev
}
