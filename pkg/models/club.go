package models

import "time"

// BookClub represents a reading group (owner + members)
type BookClub struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	Avatar      string    `json:"avatar,omitempty" db:"avatar"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type ClubRole string

const (
	RoleAdmin     ClubRole = "admin"
	RoleModerator ClubRole = "moderator"
	RoleMember    ClubRole = "member"
	// RoleNone is returned by role lookups when the user is not a member.
	RoleNone ClubRole = ""
)

// IsPrivileged reports whether the role may manage meetings and the waiting room
func (r ClubRole) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleModerator
}

// Valid reports whether r is an assignable membership role
func (r ClubRole) Valid() bool {
	return r == RoleAdmin || r == RoleModerator || r == RoleMember
}

// ClubMembership relates users to book clubs with a role
type ClubMembership struct {
	ID        string    `json:"id" db:"id"`
	ClubID    string    `json:"club_id" db:"club_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Role      ClubRole  `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Denormalized user display fields for member lists
	User PublicProfile `json:"user,omitempty"`
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// ClubInvitation is an invite to join a book club
type ClubInvitation struct {
	ID         string           `json:"id" db:"id"`
	ClubID     string           `json:"club_id" db:"club_id"`
	Email      string           `json:"email" db:"email"`
	InviterID  string           `json:"inviter_id" db:"inviter_id"`
	Token      string           `json:"token" db:"token"`
	Status     InvitationStatus `json:"status" db:"status"`
	ExpiresAt  time.Time        `json:"expires_at" db:"expires_at"`
	AcceptedBy *string          `json:"accepted_by,omitempty" db:"accepted_by"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}
