// Package v1 defines the Fleetdeck push protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type constants (wire-stable).
const (
	// TypeStatusUpdate carries agent status changes (server -> all clients).
	TypeStatusUpdate = "status_update"
	// TypeAgentMessage carries free-form agent output (server -> all clients).
	TypeAgentMessage = "agent_message"
	// TypeTaskUpdate carries task state transitions (server -> all clients).
	TypeTaskUpdate = "task_update"
	// TypeNotification carries identity-scoped notifications (server -> owning user).
	TypeNotification = "notification"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
	// TypePing is a liveness probe (both directions).
	TypePing = "ping"
	// TypePong answers a ping (both directions).
	TypePong = "pong"
	// TypeSubscribe requests scoped updates (client -> server).
	TypeSubscribe = "subscribe"
)

// Envelope is the canonical wire wrapper for every push message.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeStatusUpdate,
		TypeAgentMessage,
		TypeTaskUpdate,
		TypeNotification,
		TypeError,
		TypePing,
		TypePong,
		TypeSubscribe:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// New builds an envelope with a marshaled payload and the given timestamp.
func New(typ string, payload any, ts time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: raw, Timestamp: ts}, nil
}

// ---- Payloads ----

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Message string `json:"message"`
}

// StatusUpdatePayload carries an agent status change, or a plain server notice
// when only Message is set.
type StatusUpdatePayload struct {
	AgentID string `json:"agentId,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// AgentMessagePayload carries content emitted by an agent.
type AgentMessagePayload struct {
	AgentID string `json:"agentId"`
	Content string `json:"content"`
}

// TaskUpdatePayload carries a task state transition.
type TaskUpdatePayload struct {
	TaskID string `json:"taskId"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// NotificationPayload is an identity-scoped notification.
type NotificationPayload struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PingPayload is intentionally empty; presence of the envelope is the probe.
type PingPayload struct{}

// PongPayload answers a ping.
type PongPayload struct{}

// SubscribePayload requests updates for a specific agent (empty = all).
type SubscribePayload struct {
	AgentID string `json:"agentId,omitempty"`
}
