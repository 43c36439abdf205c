package waitingroom

import (
	"testing"
	"time"

	"ebe-backend/pkg/database"
	"ebe-backend/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *database.MemoryStore
	svc       *Service
	admin     *models.User
	moderator *models.User
	member    *models.User
	member2   *models.User
	outsider  *models.User
	meeting   *models.Meeting
}

// newFixture seeds a club with one user per role plus an outsider and a
// scheduled meeting with the waiting room enabled.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryStore()

	mkUser := func(name string) *models.User {
		u := &models.User{Email: name + "@example.com", Username: name, Password: "x"}
		require.NoError(t, store.CreateUser(u))
		return u
	}

	admin := mkUser("admin")
	moderator := mkUser("moderator")
	member := mkUser("member")
	member2 := mkUser("member2")
	outsider := mkUser("outsider")

	club := &models.BookClub{Name: "Night Readers", CreatedBy: admin.ID}
	require.NoError(t, store.CreateClub(club))
	for _, m := range []*models.ClubMembership{
		{ClubID: club.ID, UserID: admin.ID, Role: models.RoleAdmin},
		{ClubID: club.ID, UserID: moderator.ID, Role: models.RoleModerator},
		{ClubID: club.ID, UserID: member.ID, Role: models.RoleMember},
		{ClubID: club.ID, UserID: member2.ID, Role: models.RoleMember},
	} {
		require.NoError(t, store.AddClubMember(m))
	}

	meeting := &models.Meeting{
		ClubID:             club.ID,
		Title:              "Chapter 4 discussion",
		CreatedBy:          admin.ID,
		ScheduledAt:        time.Now().Add(time.Hour),
		Status:             models.MeetingScheduled,
		WaitingRoomEnabled: true,
	}
	require.NoError(t, store.CreateMeeting(meeting))

	return &fixture{
		store:     store,
		svc:       NewService(store, store, zerolog.Nop()),
		admin:     admin,
		moderator: moderator,
		member:    member,
		member2:   member2,
		outsider:  outsider,
		meeting:   meeting,
	}
}

func TestRequestJoin_MemberWaits(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, result.Status)
	require.NotNil(t, result.Participant)
	assert.Equal(t, models.WaitingStatusWaiting, result.Participant.Status)

	// A record was persisted
	p, err := f.store.GetWaitingParticipant(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitingStatusWaiting, p.Status)
}

func TestRequestJoin_PrivilegedBypass(t *testing.T) {
	f := newFixture(t)

	for _, u := range []*models.User{f.admin, f.moderator} {
		result, err := f.svc.RequestJoin(f.meeting.ID, u.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusAdmitted, result.Status)
		assert.Nil(t, result.Participant)

		// No waiting record is written for a bypass
		_, err = f.store.GetWaitingParticipant(f.meeting.ID, u.ID)
		assert.True(t, database.IsNotFound(err))
	}
}

func TestRequestJoin_WaitingRoomDisabled(t *testing.T) {
	f := newFixture(t)
	meeting := &models.Meeting{
		ClubID:             f.meeting.ClubID,
		Title:              "Open doors",
		CreatedBy:          f.admin.ID,
		ScheduledAt:        time.Now().Add(time.Hour),
		Status:             models.MeetingScheduled,
		WaitingRoomEnabled: false,
	}
	require.NoError(t, f.store.CreateMeeting(meeting))

	result, err := f.svc.RequestJoin(meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAdmitted, result.Status)
	assert.Nil(t, result.Participant)
}

func TestRequestJoin_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestJoin("no-such-meeting", f.member.ID)
	assert.ErrorIs(t, err, ErrMeetingNotFound)

	_, err = f.svc.RequestJoin(f.meeting.ID, f.outsider.ID)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestRequestJoin_RejoinResetsRecord(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, second.Status)

	// Same record, refreshed joined_at, status back to waiting
	assert.Equal(t, first.Participant.ID, second.Participant.ID)
	assert.True(t, second.Participant.JoinedAt.After(first.Participant.JoinedAt))

	list, err := f.svc.ListWaiting(f.meeting.ID, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.member.ID, list[0].UserID)
}

func TestRequestJoin_DoubleJoinWhileWaiting(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, first.Status)

	time.Sleep(5 * time.Millisecond)

	// Joining again while still waiting keeps the single record and
	// refreshes joined_at
	second, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, second.Status)
	assert.Equal(t, first.Participant.ID, second.Participant.ID)
	assert.True(t, second.Participant.JoinedAt.After(first.Participant.JoinedAt))

	list, err := f.svc.ListWaiting(f.meeting.ID, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.member.ID, list[0].UserID)
}

func TestListWaiting_OrderAndFiltering(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = f.svc.RequestJoin(f.meeting.ID, f.member2.ID)
	require.NoError(t, err)

	list, err := f.svc.ListWaiting(f.meeting.ID, f.moderator.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, f.member.ID, list[0].UserID)
	assert.Equal(t, f.member2.ID, list[1].UserID)

	// Admitted participants leave the list
	_, err = f.svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)

	list, err = f.svc.ListWaiting(f.meeting.ID, f.moderator.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.member2.ID, list[0].UserID)
}

func TestListWaiting_RequiresPrivilege(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListWaiting(f.meeting.ID, f.member.ID)
	assert.ErrorIs(t, err, ErrNotPrivileged)

	_, err = f.svc.ListWaiting(f.meeting.ID, f.outsider.ID)
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = f.svc.ListWaiting("no-such-meeting", f.admin.ID)
	assert.ErrorIs(t, err, ErrMeetingNotFound)
}

func TestAdmit_Idempotent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)

	p1, err := f.svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitingStatusAdmitted, p1.Status)

	// Admitting again re-applies the same status
	p2, err := f.svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitingStatusAdmitted, p2.Status)
	assert.Equal(t, p1.ID, p2.ID)
}

func TestAdmitReject_Errors(t *testing.T) {
	f := newFixture(t)

	// No waiting record for the target
	_, err := f.svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	assert.ErrorIs(t, err, ErrNoParticipant)

	_, err = f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)

	// A plain member cannot decide
	_, err = f.svc.Admit(f.meeting.ID, f.member2.ID, f.member.ID)
	assert.ErrorIs(t, err, ErrNotPrivileged)
	_, err = f.svc.Reject(f.meeting.ID, f.member2.ID, f.member.ID)
	assert.ErrorIs(t, err, ErrNotPrivileged)
}

func TestReject_ThenStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)

	p, err := f.svc.Reject(f.meeting.ID, f.moderator.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaitingStatusRejected, p.Status)

	status, err := f.svc.Status(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, status.Status)
	require.NotNil(t, status.JoinedAt)
}

func TestStatus_NotFoundIsData(t *testing.T) {
	f := newFixture(t)

	// Never joined: a data-level answer, not an error
	status, err := f.svc.Status(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, status.Status)
	assert.Nil(t, status.JoinedAt)
}

func TestFullAdmissionFlow(t *testing.T) {
	f := newFixture(t)

	join, err := f.svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, join.Status)

	status, err := f.svc.Status(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, status.Status)

	list, err := f.svc.ListWaiting(f.meeting.ID, f.admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)

	status, err = f.svc.Status(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAdmitted, status.Status)

	list, err = f.svc.ListWaiting(f.meeting.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type recordingSink struct {
	meetings []string
}

func (r *recordingSink) WaitingListChanged(meetingID string) {
	r.meetings = append(r.meetings, meetingID)
}

func TestNotificationSink(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	svc := NewService(f.store, f.store, zerolog.Nop(), WithNotificationSink(sink))

	_, err := svc.RequestJoin(f.meeting.ID, f.member.ID)
	require.NoError(t, err)
	_, err = svc.Admit(f.meeting.ID, f.admin.ID, f.member.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{f.meeting.ID, f.meeting.ID}, sink.meetings)

	// Privileged bypass writes nothing and notifies nobody
	_, err = svc.RequestJoin(f.meeting.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Len(t, sink.meetings, 2)
}
