package waitingroom

import (
	"errors"
	"fmt"
	"time"

	"ebe-backend/pkg/database"
	"ebe-backend/pkg/models"

	"github.com/rs/zerolog"
)

// Admission errors, mapped to HTTP status codes at the handler layer.
var (
	// ErrMeetingNotFound 会议不存在
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrNotAMember the caller does not belong to the meeting's club
	ErrNotAMember = errors.New("not a member of this club")
	// ErrNotPrivileged the caller is a member but not admin/moderator
	ErrNotPrivileged = errors.New("admin or moderator role required")
	// ErrNoParticipant no waiting record exists for the target user
	ErrNoParticipant = errors.New("no waiting record for this participant")
)

// Wire-level status strings returned to clients.
const (
	StatusAdmitted = "admitted"
	StatusWaiting  = "waiting"
	StatusRejected = "rejected"
	StatusNotFound = "not_found"
)

// Directory supplies meeting and membership lookups. Satisfied by
// database.Store.
type Directory interface {
	GetMeeting(meetingID string) (*models.Meeting, error)
	GetClubRole(clubID, userID string) (models.ClubRole, error)
}

// Store persists waiting records, one per (meeting, user). Satisfied by
// database.Store.
type Store interface {
	UpsertWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error)
	GetWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error)
	ListWaitingParticipants(meetingID string) ([]models.WaitingParticipant, error)
	SetWaitingStatus(meetingID, userID string, status models.WaitingStatus) (*models.WaitingParticipant, error)
}

// NotificationSink is told when a meeting's waiting list changes. The
// default is a no-op; moderators poll. A push implementation can be
// plugged in without touching the service.
type NotificationSink interface {
	WaitingListChanged(meetingID string)
}

type noopSink struct{}

func (noopSink) WaitingListChanged(string) {}

// Service owns the admission state machine per (meeting, participant):
// none -> waiting -> admitted | rejected, re-entrant via upsert. Every
// transition is a single-row write; concurrent conflicting calls resolve
// last-write-wins.
type Service struct {
	dir    Directory
	store  Store
	notify NotificationSink
	logger zerolog.Logger
}

// Option configures optional collaborators on the Service.
type Option func(*Service)

// WithNotificationSink replaces the no-op sink.
func WithNotificationSink(sink NotificationSink) Option {
	return func(s *Service) { s.notify = sink }
}

func NewService(dir Directory, store Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		dir:    dir,
		store:  store,
		notify: noopSink{},
		logger: logger.With().Str("component", "waitingroom").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinResult is the outcome of a join request. Participant is set only
// when the caller was placed in the waiting room.
type JoinResult struct {
	Status      string                     `json:"status"`
	Participant *models.WaitingParticipant `json:"participant,omitempty"`
}

// StatusResult is a participant's own view of their admission state.
// A missing record is reported as status "not_found" — a data result,
// not an error: asking before ever joining is a normal case.
type StatusResult struct {
	Status   string     `json:"status"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}

// resolveRole is the single capability check used by every operation.
func (s *Service) resolveRole(clubID, userID string) (models.ClubRole, error) {
	role, err := s.dir.GetClubRole(clubID, userID)
	if err != nil {
		return models.RoleNone, fmt.Errorf("resolve role: %w", err)
	}
	return role, nil
}

// getMeeting maps a storage miss to ErrMeetingNotFound.
func (s *Service) getMeeting(meetingID string) (*models.Meeting, error) {
	meeting, err := s.dir.GetMeeting(meetingID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return meeting, nil
}

// RequestJoin handles a participant asking to enter a meeting.
//
// Decision order: privileged members (admin/moderator) and meetings
// without a waiting room are admitted directly, with no record written.
// Everyone else is upserted as waiting — re-joining while still waiting,
// or after an admit/reject, overwrites the status and resets joined_at.
func (s *Service) RequestJoin(meetingID, userID string) (*JoinResult, error) {
	meeting, err := s.getMeeting(meetingID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(meeting.ClubID, userID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleNone {
		return nil, ErrNotAMember
	}

	if !meeting.WaitingRoomEnabled || role.IsPrivileged() {
		return &JoinResult{Status: StatusAdmitted}, nil
	}

	participant, err := s.store.UpsertWaitingParticipant(meetingID, userID)
	if err != nil {
		return nil, fmt.Errorf("upsert waiting participant: %w", err)
	}

	s.logger.Debug().
		Str("meeting_id", meetingID).
		Str("user_id", userID).
		Msg("participant placed in waiting room")
	s.notify.WaitingListChanged(meetingID)

	return &JoinResult{Status: StatusWaiting, Participant: participant}, nil
}

// ListWaiting returns the meeting's waiting participants in first-come
// order. Admin/moderator only.
func (s *Service) ListWaiting(meetingID, callerID string) ([]models.WaitingParticipant, error) {
	if _, err := s.requirePrivileged(meetingID, callerID); err != nil {
		return nil, err
	}

	participants, err := s.store.ListWaitingParticipants(meetingID)
	if err != nil {
		return nil, fmt.Errorf("list waiting participants: %w", err)
	}
	return participants, nil
}

// Admit moves a waiting participant to admitted. Idempotent: admitting
// an already-admitted participant re-applies the same status.
func (s *Service) Admit(meetingID, callerID, targetUserID string) (*models.WaitingParticipant, error) {
	return s.decide(meetingID, callerID, targetUserID, models.WaitingStatusAdmitted)
}

// Reject moves a waiting participant to rejected. Idempotent like Admit.
func (s *Service) Reject(meetingID, callerID, targetUserID string) (*models.WaitingParticipant, error) {
	return s.decide(meetingID, callerID, targetUserID, models.WaitingStatusRejected)
}

func (s *Service) decide(meetingID, callerID, targetUserID string, status models.WaitingStatus) (*models.WaitingParticipant, error) {
	if _, err := s.requirePrivileged(meetingID, callerID); err != nil {
		return nil, err
	}

	participant, err := s.store.SetWaitingStatus(meetingID, targetUserID, status)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrNoParticipant
		}
		return nil, fmt.Errorf("set waiting status: %w", err)
	}

	s.logger.Info().
		Str("meeting_id", meetingID).
		Str("target_user_id", targetUserID).
		Str("decided_by", callerID).
		Str("status", string(status)).
		Msg("waiting room decision")
	s.notify.WaitingListChanged(meetingID)

	return participant, nil
}

// Status reports the caller's own admission state. Never an error for a
// missing record: that is the "not_found" pseudo-status.
func (s *Service) Status(meetingID, callerID string) (*StatusResult, error) {
	participant, err := s.store.GetWaitingParticipant(meetingID, callerID)
	if err != nil {
		if database.IsNotFound(err) {
			return &StatusResult{Status: StatusNotFound}, nil
		}
		return nil, fmt.Errorf("get waiting participant: %w", err)
	}
	joinedAt := participant.JoinedAt
	return &StatusResult{Status: string(participant.Status), JoinedAt: &joinedAt}, nil
}

// requirePrivileged loads the meeting and checks the caller holds
// admin/moderator in the owning club.
func (s *Service) requirePrivileged(meetingID, callerID string) (*models.Meeting, error) {
	meeting, err := s.getMeeting(meetingID)
	if err != nil {
		return nil, err
	}
	role, err := s.resolveRole(meeting.ClubID, callerID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleNone {
		return nil, ErrNotAMember
	}
	if !role.IsPrivileged() {
		return nil, ErrNotPrivileged
	}
	return meeting, nil
}
