package channels

import (
	"context"
	"log/slog"

	"github.com/guestgate/guestgate/internal/metrics"
)

// StartEventConsumers starts a goroutine that logs every enforcement
// outcome and sweep completion and feeds the Prometheus counters.
func StartEventConsumers(ctx context.Context, events *EventChannels, logger *slog.Logger) {
	go func() {
		for {
			select {
			case event := <-events.Enforcement:
				outcome := "success"
				if !event.Success {
					outcome = "failure"
				}
				metrics.RecordEnforcement(string(event.Brand), string(event.Action), outcome, event.DurationMs)
				logger.InfoContext(ctx, "Enforcement action completed",
					slog.String("ticket", event.TicketNumber),
					slog.String("action", string(event.Action)),
					slog.String("mac", event.MAC),
					slog.String("brand", string(event.Brand)),
					slog.Bool("success", event.Success),
					slog.Int64("duration_ms", event.DurationMs),
					slog.String("message", event.Message),
				)

			case event := <-events.SweepCompleted:
				metrics.RecordSweep(event.NewlySuspended, event.Reactivated, event.Errors)
				logger.InfoContext(ctx, "Suspension sweep completed",
					slog.Int("checked", event.Checked),
					slog.Int("newly_suspended", event.NewlySuspended),
					slog.Int("already_suspended", event.AlreadySuspended),
					slog.Int("reactivated", event.Reactivated),
					slog.Int("errors", event.Errors),
					slog.String("duration", event.CompletedAt.Sub(event.StartedAt).String()),
				)

			case <-ctx.Done():
				return
			case <-events.Done():
				return
			}
		}
	}()
}
