package service

import (
	"context"
	"log/slog"
	"time"
)

// LivenessMonitor probes every registered connection on a fixed interval
// and evicts the ones that stayed silent for a full period. Eviction is
// fail-safe: a wrongly dropped client just reconnects and re-registers.
type LivenessMonitor struct {
	presence  *PresenceService
	signaling *SignalingService
	interval  time.Duration
}

func NewLivenessMonitor(
	presence *PresenceService,
	signaling *SignalingService,
	interval time.Duration,
) *LivenessMonitor {
	return &LivenessMonitor{
		presence:  presence,
		signaling: signaling,
		interval:  interval,
	}
}

// Run blocks until ctx is cancelled.
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *LivenessMonitor) tick(ctx context.Context) {
	for _, user := range m.presence.Sweep() {
		slog.Info(
			"evicted unresponsive connection",
			slog.String("user", user.ID),
			slog.String("module", "liveness"),
		)
		m.signaling.HandleDisconnect(ctx, user.ID)
	}
}
