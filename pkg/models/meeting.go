package models

import "time"

type MeetingStatus string

const (
	MeetingScheduled  MeetingStatus = "scheduled"
	MeetingInProgress MeetingStatus = "in_progress"
	MeetingRecording  MeetingStatus = "recording"
	MeetingCompleted  MeetingStatus = "completed"
	MeetingCancelled  MeetingStatus = "cancelled"
)

// meetingTransitions defines the allowed status edges. Recording toggles
// between in_progress and recording; cancellation is only possible before
// the meeting starts.
var meetingTransitions = map[MeetingStatus][]MeetingStatus{
	MeetingScheduled:  {MeetingInProgress, MeetingCancelled},
	MeetingInProgress: {MeetingRecording, MeetingCompleted},
	MeetingRecording:  {MeetingInProgress, MeetingCompleted},
}

// CanTransition reports whether a meeting may move from its current status to next
func (s MeetingStatus) CanTransition(next MeetingStatus) bool {
	for _, allowed := range meetingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Meeting is a scheduled video session for a book club
type Meeting struct {
	ID                 string        `json:"id" db:"id"`
	ClubID             string        `json:"club_id" db:"club_id"`
	Title              string        `json:"title" db:"title"`
	CreatedBy          string        `json:"created_by" db:"created_by"`
	ScheduledAt        time.Time     `json:"scheduled_at" db:"scheduled_at"`
	DurationMinutes    int           `json:"duration_minutes" db:"duration_minutes"`
	Status             MeetingStatus `json:"status" db:"status"`
	WaitingRoomEnabled bool          `json:"waiting_room_enabled" db:"waiting_room_enabled"`
	RoomID             string        `json:"room_id,omitempty" db:"room_id"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

type WaitingStatus string

const (
	WaitingStatusWaiting  WaitingStatus = "waiting"
	WaitingStatusAdmitted WaitingStatus = "admitted"
	WaitingStatusRejected WaitingStatus = "rejected"
)

// WaitingParticipant is one reader's admission record for one meeting.
// At most one record exists per (meeting, user); re-joining overwrites the
// status and resets joined_at.
type WaitingParticipant struct {
	ID        string        `json:"id" db:"id"`
	MeetingID string        `json:"meeting_id" db:"meeting_id"`
	UserID    string        `json:"user_id" db:"user_id"`
	Status    WaitingStatus `json:"status" db:"status"`
	JoinedAt  time.Time     `json:"joined_at" db:"joined_at"`

	// Denormalized user display fields for the moderator's waiting list
	User PublicProfile `json:"user,omitempty"`
}

// CreateMeetingRequest is the payload for scheduling a meeting
type CreateMeetingRequest struct {
	Title              string    `json:"title" validate:"required"`
	ScheduledAt        time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes    int       `json:"duration_minutes"`
	WaitingRoomEnabled bool      `json:"waiting_room_enabled"`
}
