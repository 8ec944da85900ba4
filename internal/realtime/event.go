package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cvrd/client/internal/util"
)

var ErrEmptyEvent = errors.New("event has neither title nor body")

type Notification struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Data       map[string]any `json:"data,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

type eventPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data"`
}

// Events arrive either bare or wrapped as {"type":"notification","payload":{...}}.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	eventPayload
}

// ParseEvent decodes one server event into a notification ready to schedule.
func ParseEvent(raw []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Notification{}, fmt.Errorf("decode event: %w", err)
	}

	payload := env.eventPayload
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if env.Type != "" && env.Type != "notification" {
			return Notification{}, fmt.Errorf("unsupported event type %q", env.Type)
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return Notification{}, fmt.Errorf("decode payload: %w", err)
		}
	}

	payload.Title = strings.TrimSpace(payload.Title)
	payload.Body = strings.TrimSpace(payload.Body)
	if payload.Title == "" && payload.Body == "" {
		return Notification{}, ErrEmptyEvent
	}
	return Notification{
		ID:         util.NewID("ntf"),
		Title:      payload.Title,
		Body:       payload.Body,
		Data:       payload.Data,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
