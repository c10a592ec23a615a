// Package push delivers reminder batches to a push notification provider.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Endpoint is one deliverable push target. Token is the opaque provider
// token, an SNS platform endpoint ARN or a web push URL. P256dh and Auth
// are only present for web push subscriptions.
type Endpoint struct {
	Token  string
	P256dh string
	Auth   string
}

// Batch is one reminder addressed to every resolved endpoint of a project's
// pending workers.
type Batch struct {
	ProjectID uuid.UUID
	Kind      string
	Title     string
	Body      string
	Data      map[string]string
	Endpoints []Endpoint
}

// Response carries the provider's reply. Raw is persisted verbatim in the
// notification log for later inspection, success or failure alike.
type Response struct {
	Provider  string          `json:"provider"`
	Delivered int             `json:"delivered"`
	Raw       json.RawMessage `json:"raw,omitempty"`

	// GoneEndpoints lists tokens the provider reported as permanently
	// dead (web push 404/410, SNS disabled endpoint). The caller
	// deactivates the matching subscriptions.
	GoneEndpoints []string `json:"-"`
}

// Sender is the push provider contract. Implementations may return a
// non-nil Response together with an error so the raw provider payload is
// still available for the log.
type Sender interface {
	Send(ctx context.Context, batch *Batch) (*Response, error)
	Name() string
}

// payload is the JSON document shown to the receiving client.
type payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func marshalPayload(batch *Batch) ([]byte, error) {
	return json.Marshal(payload{
		Title: batch.Title,
		Body:  batch.Body,
		Data:  batch.Data,
	})
}

// LogSender logs batches instead of delivering them (development/tests).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, batch *Batch) (*Response, error) {
	s.logger.Info("push batch (development mode)",
		zap.String("project_id", batch.ProjectID.String()),
		zap.String("kind", batch.Kind),
		zap.String("title", batch.Title),
		zap.Int("endpoints", len(batch.Endpoints)),
	)

	raw, _ := json.Marshal(map[string]any{
		"logged":    true,
		"endpoints": len(batch.Endpoints),
	})

	return &Response{
		Provider:  s.Name(),
		Delivered: len(batch.Endpoints),
		Raw:       raw,
	}, nil
}

func (s *LogSender) Name() string { return "log" }

// DisabledSender fails every send with the configuration problem that
// disabled delivery. Used when provider credentials are missing so the
// dispatcher records an inline error instead of crashing at startup.
type DisabledSender struct {
	reason string
}

func NewDisabledSender(reason string) *DisabledSender {
	return &DisabledSender{reason: reason}
}

func (s *DisabledSender) Send(ctx context.Context, batch *Batch) (*Response, error) {
	return nil, fmt.Errorf("push delivery disabled: %s", s.reason)
}

func (s *DisabledSender) Name() string { return "disabled" }
