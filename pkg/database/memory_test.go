package database

import (
	"testing"
	"time"

	"ebe-backend/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMeeting(t *testing.T, s *MemoryStore) *models.Meeting {
	t.Helper()
	m := &models.Meeting{
		ClubID:             "club-1",
		Title:              "test",
		CreatedBy:          "creator",
		ScheduledAt:        time.Now(),
		Status:             models.MeetingScheduled,
		WaitingRoomEnabled: true,
	}
	require.NoError(t, s.CreateMeeting(m))
	return m
}

func TestUpsertWaitingParticipant_SingleRecordPerUser(t *testing.T) {
	s := NewMemoryStore()
	m := seedMeeting(t, s)

	first, err := s.UpsertWaitingParticipant(m.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.WaitingStatusWaiting, first.Status)

	// Decide, then re-join: status resets, joined_at moves forward,
	// record identity is preserved
	_, err = s.SetWaitingStatus(m.ID, "u1", models.WaitingStatusRejected)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := s.UpsertWaitingParticipant(m.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.WaitingStatusWaiting, second.Status)
	assert.True(t, second.JoinedAt.After(first.JoinedAt))

	list, err := s.ListWaitingParticipants(m.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListWaitingParticipants_OrderedAndFiltered(t *testing.T) {
	s := NewMemoryStore()
	m := seedMeeting(t, s)

	for _, uid := range []string{"u1", "u2", "u3"} {
		_, err := s.UpsertWaitingParticipant(m.ID, uid)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := s.SetWaitingStatus(m.ID, "u2", models.WaitingStatusAdmitted)
	require.NoError(t, err)

	list, err := s.ListWaitingParticipants(m.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)
	assert.Equal(t, "u3", list[1].UserID)
}

func TestSetWaitingStatus_MissingRecord(t *testing.T) {
	s := NewMemoryStore()
	m := seedMeeting(t, s)

	_, err := s.SetWaitingStatus(m.ID, "ghost", models.WaitingStatusAdmitted)
	assert.True(t, IsNotFound(err))

	_, err = s.GetWaitingParticipant(m.ID, "ghost")
	assert.True(t, IsNotFound(err))
}

func TestGetClubRole_NonMemberIsNone(t *testing.T) {
	s := NewMemoryStore()

	club := &models.BookClub{Name: "c", CreatedBy: "u1"}
	require.NoError(t, s.CreateClub(club))
	require.NoError(t, s.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: "u1", Role: models.RoleAdmin}))

	role, err := s.GetClubRole(club.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	// Absence is a role, not an error
	role, err = s.GetClubRole(club.ID, "stranger")
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, role)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	s := NewMemoryStore()

	require.NoError(t, s.CreateUser(&models.User{Email: "a@b.c", Username: "a"}))
	err := s.CreateUser(&models.User{Email: "a@b.c", Username: "other"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestAddClubMember_Duplicate(t *testing.T) {
	s := NewMemoryStore()

	club := &models.BookClub{Name: "c", CreatedBy: "u1"}
	require.NoError(t, s.CreateClub(club))
	require.NoError(t, s.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: "u1", Role: models.RoleMember}))

	err := s.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: "u1", Role: models.RoleMember})
	assert.ErrorIs(t, err, ErrDuplicate)
}
