package service

import (
	"context"
	"testing"
	"time"

	"github.com/Owill27/livekit/internal/domain"
)

func TestLivenessMonitorEvictsAndTerminatesCalls(t *testing.T) {
	s, p, _ := newTestSignaling(0)
	m := NewLivenessMonitor(p, s, time.Hour)

	callerConn := connect(p, alice)
	connect(p, bob)

	call, err := s.StartCall(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	// first pass marks everyone unresponsive and pings; the caller
	// answers the probe, bob stays silent for a full interval
	m.tick(context.Background())
	p.MarkAlive("alice")
	m.tick(context.Background())

	if _, ok := p.Lookup("bob"); ok {
		t.Error("bob should be evicted")
	}
	if _, ok := p.Lookup("alice"); !ok {
		t.Error("alice should survive")
	}

	// the ringing receiver vanished, so the call is missed
	got, _ := s.ledger.FindByID(call.ID)
	if got.Status != domain.CallStatusMissed {
		t.Errorf("got %s, want MISSED", got.Status)
	}
	types := eventTypes(callerConn.Events())
	if types[len(types)-1] != domain.EventMissedCall {
		t.Errorf("caller events: %v", types)
	}
}

func TestLivenessMonitorRunStopsOnCancel(t *testing.T) {
	s, p, _ := newTestSignaling(0)
	m := NewLivenessMonitor(p, s, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}
