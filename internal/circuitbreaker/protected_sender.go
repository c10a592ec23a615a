package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/push"
)

// ProtectedSender wraps a push.Sender with a CircuitBreaker. When the
// provider starts failing the circuit opens and sends fail fast, so one
// dead provider cannot stall the rest of the dispatch loop.
type ProtectedSender struct {
	sender  push.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender push.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Send forwards the batch through the breaker. With the circuit open it
// returns ErrCircuitOpen immediately; the dispatcher records that like any
// other delivery failure.
func (p *ProtectedSender) Send(ctx context.Context, batch *push.Batch) (*push.Response, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected push batch",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("project_id", batch.ProjectID.String()),
			zap.String("kind", batch.Kind),
			zap.String("state", p.breaker.GetState().String()),
		)
		return nil, fmt.Errorf("%w: %s provider unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	resp, err := p.sender.Send(ctx, batch)
	if err != nil {
		p.breaker.RecordFailure()
		return resp, err
	}

	p.breaker.RecordSuccess()
	return resp, nil
}

// Name reports the underlying provider name.
func (p *ProtectedSender) Name() string {
	return p.sender.Name()
}

// Breaker exposes the breaker for the health endpoint.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
