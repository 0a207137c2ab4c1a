// Package call implements 1-1 call signaling over the socket layer: invite,
// answer, ICE candidate relay, and hangup, backed by a persisted call row
// whose status follows a strict state machine.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/pkg/constants"
	apperrors "cipherlink-backend/pkg/errors"
	"cipherlink-backend/pkg/metrics"
)

// Event names carried on the socket channel
const (
	EventInvite    = "call:invite"
	EventRing      = "call:ring"
	EventAnswer    = "call:answer"
	EventAnswered  = "call:answered"
	EventRejected  = "call:rejected"
	EventCandidate = "call:candidate"
	EventHangup    = "call:hangup"
	EventEnded     = "call:ended"
	EventError     = "call:error"
)

// CallStore persists call rows and their status transitions
type CallStore interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID int64) (*domain.Call, error)
	MarkAnswered(ctx context.Context, callID int64) (*domain.Call, error)
	MarkRejected(ctx context.Context, callID int64) (*domain.Call, error)
	MarkEnded(ctx context.Context, callID int64) (*domain.Call, error)
}

// Emitter delivers an event to one user's private channel
type Emitter interface {
	EmitToUser(ctx context.Context, userID int64, event string, payload any) error
}

// InviteEvent is the inbound call:invite payload
type InviteEvent struct {
	CalleeID int64  `json:"calleeId"`
	ChatID   int64  `json:"chatId"`
	Mode     string `json:"mode"`
	SDP      string `json:"sdp"`
}

// RingPayload is the call:ring event delivered to the callee
type RingPayload struct {
	CallID    int64     `json:"callId"`
	CallerID  int64     `json:"callerId"`
	Mode      string    `json:"mode"`
	SDP       string    `json:"sdp"`
	Timestamp time.Time `json:"timestamp"`
}

// AnswerEvent is the inbound call:answer payload
type AnswerEvent struct {
	CallID int64  `json:"callId"`
	Accept bool   `json:"accept"`
	SDP    string `json:"sdp"`
}

// AnsweredPayload is the call:answered event delivered to the caller
type AnsweredPayload struct {
	CallID     int64      `json:"callId"`
	SDP        string     `json:"sdp"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// RejectedPayload is the call:rejected event delivered to the caller
type RejectedPayload struct {
	CallID  int64      `json:"callId"`
	EndedAt *time.Time `json:"endedAt,omitempty"`
}

// CandidateEvent is the inbound call:candidate payload, relayed verbatim
type CandidateEvent struct {
	CallID    int64           `json:"callId"`
	ToUserID  int64           `json:"toUserId"`
	Candidate json.RawMessage `json:"candidate"`
}

// HangupEvent is the inbound call:hangup payload
type HangupEvent struct {
	CallID int64 `json:"callId"`
}

// EndedPayload is the call:ended event delivered to the peer
type EndedPayload struct {
	CallID   int64      `json:"callId"`
	ByUserID int64      `json:"byUserId"`
	EndedAt  *time.Time `json:"endedAt,omitempty"`
}

// ErrorPayload is the call:error event, delivered to the requester only
type ErrorPayload struct {
	Error string `json:"error"`
}

// Service drives the call-signaling state machine
type Service struct {
	calls   CallStore
	emitter Emitter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a new call service
func NewService(calls CallStore, emitter Emitter, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		calls:   calls,
		emitter: emitter,
		metrics: m,
		logger:  logger,
	}
}

// Invite persists a new INITIATED call and rings the callee. A persistence
// failure is reported to the caller only, never broadcast.
func (s *Service) Invite(ctx context.Context, callerID int64, ev InviteEvent) error {
	if callerID <= 0 || ev.CalleeID <= 0 {
		return fmt.Errorf("invite requires a bound caller and a callee id")
	}

	mode := ev.Mode
	if mode != constants.CallModeVideo {
		mode = constants.CallModeAudio
	}

	call := &domain.Call{
		CallerID: callerID,
		CalleeID: ev.CalleeID,
		ChatID:   ev.ChatID,
		Mode:     mode,
	}

	if err := s.calls.Create(ctx, call); err != nil {
		s.record("invite", "error")
		s.emitError(ctx, callerID, apperrors.ErrCodeInviteFailed)
		return fmt.Errorf("failed to persist call invite: %w", err)
	}

	s.record("invite", "ok")
	if s.metrics != nil {
		s.metrics.IncActiveCalls()
	}

	s.emit(ctx, ev.CalleeID, EventRing, RingPayload{
		CallID:    call.CallID,
		CallerID:  callerID,
		Mode:      call.Mode,
		SDP:       ev.SDP,
		Timestamp: call.CreatedAt,
	})

	return nil
}

// Answer resolves an INITIATED call. Only the true callee may act; an answer
// from any other user, or for a call no longer in INITIATED, is a complete
// no-op. That silence is a security boundary: reacting at all would leak the
// call's existence to non-participants.
func (s *Service) Answer(ctx context.Context, userID int64, ev AnswerEvent) error {
	call, err := s.calls.GetByID(ctx, ev.CallID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		s.record("answer", "error")
		return fmt.Errorf("failed to look up call: %w", err)
	}

	if call.CalleeID != userID || call.Status != constants.CallStatusInitiated {
		return nil
	}

	if !ev.Accept {
		rejected, err := s.calls.MarkRejected(ctx, ev.CallID)
		if err != nil {
			s.record("answer", "error")
			return fmt.Errorf("failed to reject call: %w", err)
		}
		s.record("answer", "rejected")
		if s.metrics != nil {
			s.metrics.DecActiveCalls()
		}
		s.emit(ctx, call.CallerID, EventRejected, RejectedPayload{
			CallID:  rejected.CallID,
			EndedAt: rejected.EndedAt,
		})
		return nil
	}

	answered, err := s.calls.MarkAnswered(ctx, ev.CallID)
	if err != nil {
		s.record("answer", "error")
		return fmt.Errorf("failed to answer call: %w", err)
	}
	s.record("answer", "accepted")
	s.emit(ctx, call.CallerID, EventAnswered, AnsweredPayload{
		CallID:     answered.CallID,
		SDP:        ev.SDP,
		AcceptedAt: answered.AcceptedAt,
	})
	return nil
}

// Candidate relays an ICE candidate to the target user's private channel.
// Pure relay: nothing is persisted and the payload is forwarded unchanged.
func (s *Service) Candidate(ctx context.Context, userID int64, ev CandidateEvent) error {
	if userID <= 0 || ev.ToUserID <= 0 {
		return nil
	}
	s.record("candidate", "ok")
	s.emit(ctx, ev.ToUserID, EventCandidate, ev)
	return nil
}

// Hangup ends the call from either participant's side and notifies the peer.
// Hanging up a call already in a terminal state is a no-op. A persistence
// failure is reported to the requester only.
func (s *Service) Hangup(ctx context.Context, userID int64, ev HangupEvent) error {
	call, err := s.calls.GetByID(ctx, ev.CallID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		s.record("hangup", "error")
		s.emitError(ctx, userID, apperrors.ErrCodeHangupFailed)
		return fmt.Errorf("failed to look up call: %w", err)
	}

	if !call.IsParticipant(userID) || call.IsTerminal() {
		return nil
	}

	ended, err := s.calls.MarkEnded(ctx, ev.CallID)
	if err != nil {
		s.record("hangup", "error")
		s.emitError(ctx, userID, apperrors.ErrCodeHangupFailed)
		return fmt.Errorf("failed to end call: %w", err)
	}

	s.record("hangup", "ok")
	if s.metrics != nil {
		s.metrics.DecActiveCalls()
	}

	s.emit(ctx, call.PeerOf(userID), EventEnded, EndedPayload{
		CallID:   ended.CallID,
		ByUserID: userID,
		EndedAt:  ended.EndedAt,
	})
	return nil
}

func (s *Service) emit(ctx context.Context, userID int64, event string, payload any) {
	if err := s.emitter.EmitToUser(ctx, userID, event, payload); err != nil {
		// Signaling is best-effort once state is durable
		s.logger.Warn("call event delivery failed",
			zap.Int64("user_id", userID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *Service) emitError(ctx context.Context, userID int64, code apperrors.ErrorCode) {
	s.emit(ctx, userID, EventError, ErrorPayload{Error: string(code)})
}

func (s *Service) record(event, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCallEvent(event, outcome)
	}
}
