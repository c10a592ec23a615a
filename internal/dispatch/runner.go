package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Loop runs the dispatcher on a fixed cadence, for deployments without an
// external scheduler hitting the trigger endpoint. There is no overlap
// control between invocations; the dispatch claim keeps a slow run racing
// the next one from double-sending.
func (d *Dispatcher) Loop(ctx context.Context, interval time.Duration, onReport func(*Report)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("dispatch loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatch loop stopping")
			return
		case <-ticker.C:
			rep, err := d.Run(ctx)
			if err != nil {
				d.logger.Error("dispatch run failed", zap.Error(err))
				continue
			}
			if onReport != nil {
				onReport(rep)
			}
		}
	}
}
