// Package calls implements the pickup call operations: authorization,
// lifecycle transitions, persistence and classroom notification.
package calls

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"callboard/internal/metrics"
	"callboard/internal/policy"
	"callboard/pkg/interfaces"
	"callboard/pkg/types"
)

// MaxUpdateAttempts bounds reload-and-retry after a concurrent transition.
const MaxUpdateAttempts = 3

// Service is the call lifecycle entry point used by the HTTP surface.
type Service struct {
	store     interfaces.CallStore
	directory interfaces.Directory
	notifier  interfaces.Notifier
	policy    *policy.Policy
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService wires the service. A nil notifier disables broadcasts.
func NewService(
	store interfaces.CallStore,
	directory interfaces.Directory,
	notifier interfaces.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if m == nil {
		m = metrics.Noop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		policy:    policy.New(),
		metrics:   m,
		logger:    logger.Named("calls"),
	}
}

// CreateCall opens a pending call for the parent's student and announces it
// to the student's classroom.
func (s *Service) CreateCall(ctx context.Context, actor types.Identity, studentID string) (*types.CallDetail, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeCreate(actor); err != nil {
		return nil, err
	}
	if !types.IsValidID(studentID) {
		return nil, fmt.Errorf("student %q: %w", studentID, types.ErrNotFound)
	}

	if _, err := s.directory.GetStudentPlacement(ctx, studentID); err != nil {
		return nil, err
	}
	linked, err := s.directory.IsParentOf(ctx, actor.UserID, studentID)
	if err != nil {
		return nil, err
	}
	if !linked {
		return nil, fmt.Errorf("%w: not a parent of student %s", types.ErrForbidden, studentID)
	}

	call, err := s.store.CreateCall(ctx, studentID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.metrics.CallsCreated.Add(ctx, 1)

	detail := s.loadDetail(ctx, call)
	s.logger.Info("call created",
		zap.String("call_id", call.ID),
		zap.String("channel", detail.Channel()),
	)

	s.notify(ctx, types.EnvelopeNewCall, detail)
	return detail, nil
}

// UpdateCallStatus moves a call to status on behalf of actor. A transition
// that loses a race is re-evaluated against the fresh row, never overwritten.
func (s *Service) UpdateCallStatus(ctx context.Context, actor types.Identity, callID string, status types.CallStatus) (*types.CallDetail, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}

	var (
		updated *types.Call
		lastErr error
	)
	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		call, err := s.store.GetCall(ctx, callID)
		if err != nil {
			return nil, err
		}
		if err := s.policy.Authorize(actor, call, status); err != nil {
			s.recordTransition(ctx, status, err)
			return nil, err
		}

		updated, lastErr = s.store.UpdateCallStatus(ctx, callID, call.Version, status)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, types.ErrVersionConflict) {
			return nil, lastErr
		}
		s.logger.Debug("call changed concurrently, retrying",
			zap.String("call_id", callID),
			zap.Int("attempt", attempt+1),
		)
	}
	if lastErr != nil {
		s.recordTransition(ctx, status, lastErr)
		return nil, lastErr
	}
	s.recordTransition(ctx, status, nil)

	detail := s.loadDetail(ctx, updated)
	s.logger.Info("call status updated",
		zap.String("call_id", callID),
		zap.String("status", string(updated.Status)),
		zap.String("actor", actor.UserID),
	)

	s.notify(ctx, types.EnvelopeCallUpdated, detail)
	return detail, nil
}

// GetCall returns one call if the actor may see it.
func (s *Service) GetCall(ctx context.Context, actor types.Identity, callID string) (*types.CallDetail, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	detail, err := s.store.GetCallDetail(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanView(actor, &detail.Call) {
		return nil, fmt.Errorf("%w: call %s", types.ErrForbidden, callID)
	}
	return detail, nil
}

// ListCalls lists calls within the actor's scope, newest first.
func (s *Service) ListCalls(ctx context.Context, actor types.Identity, filter types.CallFilter) ([]*types.CallDetail, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	filter.Order = types.OrderNewestFirst
	scoped, err := s.policy.Scope(actor, filter)
	if err != nil {
		return nil, err
	}
	return s.store.ListCalls(ctx, scoped)
}

// ListClassQueue lists a class's calls oldest first, the order a teacher
// works through them.
func (s *Service) ListClassQueue(ctx context.Context, actor types.Identity, classID string, activeOnly bool) ([]*types.CallDetail, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	class, err := s.directory.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.AuthorizeClass(actor, class); err != nil {
		return nil, err
	}
	return s.store.ListCalls(ctx, types.CallFilter{
		SchoolID:   class.SchoolID,
		ClassID:    class.ID,
		ActiveOnly: activeOnly,
		Limit:      types.MaxListLimit,
		Order:      types.OrderOldestFirst,
	})
}

// loadDetail joins the call for notification and response. The call is
// already committed, so a failed join degrades to the bare row.
func (s *Service) loadDetail(ctx context.Context, call *types.Call) *types.CallDetail {
	detail, err := s.store.GetCallDetail(ctx, call.ID)
	if err != nil {
		s.logger.Warn("failed to load call detail", zap.String("call_id", call.ID), zap.Error(err))
		return &types.CallDetail{Call: *call}
	}
	return detail
}

// notify is best effort: the state change is committed whatever happens here.
func (s *Service) notify(ctx context.Context, kind string, detail *types.CallDetail) {
	if s.notifier == nil {
		return
	}
	// The channel name comes from the class; without it no display could
	// be subscribed to the fallback name.
	if detail.Class == nil {
		s.logger.Warn("call detail has no class, skipping classroom notification",
			zap.String("call_id", detail.ID),
			zap.String("kind", kind),
		)
		return
	}
	envelope := &types.Envelope{Type: kind, Data: detail}
	if err := s.notifier.Notify(ctx, detail.Channel(), envelope); err != nil {
		s.logger.Warn("failed to queue classroom notification",
			zap.String("call_id", detail.ID),
			zap.String("channel", detail.Channel()),
			zap.Error(err),
		)
	}
}

func (s *Service) recordTransition(ctx context.Context, status types.CallStatus, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, types.ErrForbidden):
		result = "forbidden"
	case errors.Is(err, types.ErrInvalidTransition):
		result = "invalid"
	case errors.Is(err, types.ErrVersionConflict):
		result = "conflict"
	default:
		result = "error"
	}
	s.metrics.RecordTransition(ctx, string(status), result)
}

func checkActor(actor types.Identity) error {
	if err := actor.Validate(); err != nil {
		if errors.Is(err, types.ErrForbidden) {
			return err
		}
		return fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}
	return nil
}
