package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Owill27/livekit/internal/domain"
)

var tracer = otel.Tracer("signaling")

// SignalingService is the call-control state machine. It validates
// control requests against the presence registry and the call ledger,
// applies the transition, and pushes notifications to the affected
// connections. Pushes are fire-and-forget; a failed push is logged and
// never fails the request.
type SignalingService struct {
	presence    *PresenceService
	ledger      *CallLedger
	dialTimeout time.Duration
}

func NewSignalingService(
	presence *PresenceService,
	ledger *CallLedger,
	dialTimeout time.Duration,
) *SignalingService {
	return &SignalingService{
		presence:    presence,
		ledger:      ledger,
		dialTimeout: dialTimeout,
	}
}

// StartCall creates a DIALLING call between two online users and rings
// the receiver with INCOMING_CALL. The caller gets the call only as the
// return value.
func (s *SignalingService) StartCall(ctx context.Context, callerID, receiverID string) (domain.Call, error) {
	_, span := tracer.Start(ctx, "Signaling.Service.StartCall")
	defer span.End()
	span.SetAttributes(
		attribute.String("caller", callerID),
		attribute.String("receiver", receiverID),
	)

	caller, ok := s.presence.Lookup(callerID)
	if !ok {
		err := domain.NotFoundError{Resource: "caller"}
		span.RecordError(err)
		return domain.Call{}, err
	}
	receiver, ok := s.presence.Lookup(receiverID)
	if !ok {
		err := domain.NotFoundError{Resource: "receiver"}
		span.RecordError(err)
		return domain.Call{}, err
	}

	call, err := s.ledger.Create(caller, receiver)
	if err != nil {
		span.RecordError(errors.Wrap(err, "SignalingService.StartCall: s.ledger.Create failed"))
		return domain.Call{}, err
	}
	span.SetAttributes(attribute.String("call", call.ID))

	s.push(receiver.ID, domain.Event{Type: domain.EventIncomingCall, Call: &call})
	s.armDialTimeout(call)

	return call, nil
}

// AnswerCall resolves a ringing call. ACCEPT moves it to ONGOING and
// notifies the caller with ACCEPT_CALL; DECLINE moves it to DECLINED and
// notifies with DECLINE_CALL. The transition goes through even when the
// caller has dropped offline; only the push is skipped.
func (s *SignalingService) AnswerCall(ctx context.Context, callID string, answer domain.Answer) (domain.Call, error) {
	_, span := tracer.Start(ctx, "Signaling.Service.AnswerCall")
	defer span.End()
	span.SetAttributes(
		attribute.String("call", callID),
		attribute.String("answer", string(answer)),
	)

	var next domain.CallStatus
	var eventType string
	switch answer {
	case domain.AnswerAccept:
		next = domain.CallStatusOngoing
		eventType = domain.EventAcceptCall
	case domain.AnswerDecline:
		next = domain.CallStatusDeclined
		eventType = domain.EventDeclineCall
	default:
		err := domain.InvalidArgumentError{Reason: fmt.Sprintf("unknown answer %q", answer)}
		span.RecordError(err)
		return domain.Call{}, err
	}

	call, err := s.ledger.UpdateStatus(callID, next)
	if err != nil {
		span.RecordError(errors.Wrap(err, "SignalingService.AnswerCall: s.ledger.UpdateStatus failed"))
		return domain.Call{}, err
	}

	s.push(call.Caller.ID, domain.Event{Type: eventType, Call: &call})

	return call, nil
}

// EndCall terminates a DIALLING or ONGOING call and notifies the
// participant who did not request the hangup with END_CALL. The requester
// gets the call only as the return value.
func (s *SignalingService) EndCall(ctx context.Context, callID, requesterID string) (domain.Call, error) {
	_, span := tracer.Start(ctx, "Signaling.Service.EndCall")
	defer span.End()
	span.SetAttributes(
		attribute.String("call", callID),
		attribute.String("requester", requesterID),
	)

	call, err := s.ledger.UpdateStatus(callID, domain.CallStatusEnded)
	if err != nil {
		span.RecordError(errors.Wrap(err, "SignalingService.EndCall: s.ledger.UpdateStatus failed"))
		return domain.Call{}, err
	}

	s.push(call.Other(requesterID).ID, domain.Event{Type: domain.EventEndCall, Call: &call})

	return call, nil
}

// HandleDisconnect terminates the user's in-flight calls after their
// connection is gone, whether by socket close or liveness eviction. A
// receiver vanishing mid-ring makes the call MISSED; any other drop ends
// the call. The surviving participant is notified.
func (s *SignalingService) HandleDisconnect(ctx context.Context, userID string) {
	_, span := tracer.Start(ctx, "Signaling.Service.HandleDisconnect")
	defer span.End()
	span.SetAttributes(attribute.String("user", userID))

	for _, call := range s.ledger.ActiveFor(userID) {
		if call.Status == domain.CallStatusDialling && call.Receiver.ID == userID {
			missed, err := s.ledger.UpdateStatus(call.ID, domain.CallStatusMissed)
			if err != nil {
				span.RecordError(errors.Wrap(err, "SignalingService.HandleDisconnect: s.ledger.UpdateStatus failed"))
				continue
			}
			s.push(missed.Caller.ID, domain.Event{Type: domain.EventMissedCall, Call: &missed})
			continue
		}

		ended, err := s.ledger.UpdateStatus(call.ID, domain.CallStatusEnded)
		if err != nil {
			span.RecordError(errors.Wrap(err, "SignalingService.HandleDisconnect: s.ledger.UpdateStatus failed"))
			continue
		}
		s.push(ended.Other(userID).ID, domain.Event{Type: domain.EventEndCall, Call: &ended})
	}
}

func (s *SignalingService) armDialTimeout(call domain.Call) {
	if s.dialTimeout <= 0 {
		return
	}
	time.AfterFunc(s.dialTimeout, func() {
		s.expireDial(call.ID)
	})
}

// expireDial gives up on a call nobody answered. The ledger rejects the
// transition when the call already left DIALLING, which makes a late
// timer a no-op.
func (s *SignalingService) expireDial(callID string) {
	call, err := s.ledger.UpdateStatus(callID, domain.CallStatusMissed)
	if err != nil {
		return
	}

	slog.Info(
		"dial timed out",
		slog.String("call", call.ID),
		slog.String("module", "signaling"),
	)
	event := domain.Event{Type: domain.EventMissedCall, Call: &call}
	s.push(call.Caller.ID, event)
	s.push(call.Receiver.ID, event)
}

func (s *SignalingService) push(userID string, event domain.Event) {
	if err := s.presence.Send(userID, event); err != nil {
		slog.Warn(
			"push dropped",
			slog.String("user", userID),
			slog.String("event", event.Type),
			slog.String("error", err.Error()),
			slog.String("module", "signaling"),
		)
	}
}
