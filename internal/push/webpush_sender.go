package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
)

// WebPushSender delivers reminders to browser subscriptions using the Web
// Push protocol with VAPID authentication.
type WebPushSender struct {
	options webpush.Options
	logger  *zap.Logger
}

type WebPushConfig struct {
	Subscriber string // contact address the push service may use
	PublicKey  string
	PrivateKey string
	TTL        int // seconds; 0 means one hour
}

// NewWebPushSender creates a web push sender. Missing VAPID keys are a
// configuration error surfaced at startup.
func NewWebPushSender(cfg WebPushConfig, logger *zap.Logger) (*WebPushSender, error) {
	if cfg.PublicKey == "" || cfg.PrivateKey == "" {
		return nil, fmt.Errorf("VAPID keys are required for web push")
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 3600
	}

	return &WebPushSender{
		options: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.PublicKey,
			VAPIDPrivateKey: cfg.PrivateKey,
			TTL:             ttl,
		},
		logger: logger,
	}, nil
}

type webpushResult struct {
	Statuses map[string]int    `json:"statuses"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Send encrypts and posts the payload to every subscription endpoint.
// Endpoints answering 404 or 410 are reported back as gone so their
// subscriptions get deactivated.
func (s *WebPushSender) Send(ctx context.Context, batch *Batch) (*Response, error) {
	if len(batch.Endpoints) == 0 {
		return nil, fmt.Errorf("empty endpoint set")
	}

	body, err := marshalPayload(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}

	result := webpushResult{
		Statuses: map[string]int{},
		Failures: map[string]string{},
	}
	var gone []string
	delivered := 0

	for _, ep := range batch.Endpoints {
		sub := &webpush.Subscription{
			Endpoint: ep.Token,
			Keys: webpush.Keys{
				P256dh: ep.P256dh,
				Auth:   ep.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &s.options)
		if err != nil {
			result.Failures[ep.Token] = err.Error()
			s.logger.Warn("web push send failed",
				zap.String("project_id", batch.ProjectID.String()),
				zap.Error(err),
			)
			continue
		}

		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()

		result.Statuses[ep.Token] = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			gone = append(gone, ep.Token)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			delivered++
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal web push result: %w", err)
	}

	response := &Response{
		Provider:      s.Name(),
		Delivered:     delivered,
		Raw:           raw,
		GoneEndpoints: gone,
	}

	if delivered == 0 {
		return response, fmt.Errorf("web push rejected all %d endpoints", len(batch.Endpoints))
	}

	s.logger.Info("push batch sent via web push",
		zap.String("project_id", batch.ProjectID.String()),
		zap.String("kind", batch.Kind),
		zap.Int("delivered", delivered),
		zap.Int("gone", len(gone)),
	)

	return response, nil
}

func (s *WebPushSender) Name() string { return "webpush" }
