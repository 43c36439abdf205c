package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ebe-backend/pkg/cache"
	"ebe-backend/pkg/config"
	"ebe-backend/pkg/database"
	"ebe-backend/pkg/mailer"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *utils.APIError `json:"error"`
}

type testEnv struct {
	router  http.Handler
	store   *database.MemoryStore
	jwt     *utils.JWTService
	admin   *models.User
	member  *models.User
	lurker  *models.User // registered user outside the club
	club    *models.BookClub
	meeting *models.Meeting
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Environment:    "test",
		Port:           "0",
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"*"},
	}
	store := database.NewMemoryStore()
	logger := zerolog.Nop()
	router := NewRouter(cfg, store, cache.NewMemoryCache(), mailer.NewLogMailer(logger), logger)

	mkUser := func(name string) *models.User {
		u := &models.User{Email: name + "@example.com", Username: name, Password: "x"}
		require.NoError(t, store.CreateUser(u))
		return u
	}
	admin := mkUser("admin")
	member := mkUser("member")
	lurker := mkUser("lurker")

	club := &models.BookClub{Name: "Night Readers", CreatedBy: admin.ID}
	require.NoError(t, store.CreateClub(club))
	require.NoError(t, store.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: admin.ID, Role: models.RoleAdmin}))
	require.NoError(t, store.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: member.ID, Role: models.RoleMember}))

	meeting := &models.Meeting{
		ClubID:             club.ID,
		Title:              "Chapter 4",
		CreatedBy:          admin.ID,
		ScheduledAt:        time.Now().Add(time.Hour),
		Status:             models.MeetingScheduled,
		WaitingRoomEnabled: true,
	}
	require.NoError(t, store.CreateMeeting(meeting))

	return &testEnv{
		router:  router,
		store:   store,
		jwt:     utils.NewJWTService(testSecret),
		admin:   admin,
		member:  member,
		lurker:  lurker,
		club:    club,
		meeting: meeting,
	}
}

func (e *testEnv) tokenFor(t *testing.T, u *models.User) string {
	t.Helper()
	access, _, err := e.jwt.GenerateAccessToken(u.ID, u.Email)
	require.NoError(t, err)
	return access
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestRegisterAndLoginFlow(t *testing.T) {
	e := newTestEnv(t)

	rec, env := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "reader@example.com",
		"username": "reader",
		"password": "supersecret",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	rec, env = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "reader@example.com",
		"password": "supersecret",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var login models.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)

	// The issued token works against a protected endpoint
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	rec2 := httptest.NewRecorder()
	e.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newTestEnv(t)

	_, _ = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "reader@example.com",
		"username": "reader",
		"password": "supersecret",
	})
	rec, env := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "reader@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestWaitingRoom_EndToEnd(t *testing.T) {
	e := newTestEnv(t)
	adminTok := e.tokenFor(t, e.admin)
	memberTok := e.tokenFor(t, e.member)
	base := "/api/meetings/" + e.meeting.ID + "/waiting-room"

	// Member joins and waits
	rec, env := e.do(t, http.MethodPost, base+"/join", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var join struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &join))
	assert.Equal(t, "waiting", join.Status)

	// Member sees their own status
	rec, env = e.do(t, http.MethodGet, base+"/status", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "waiting", status.Status)

	// Admin sees the queue
	rec, env = e.do(t, http.MethodGet, base+"/participants", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Participants []models.WaitingParticipant `json:"participants"`
		Total        int                         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, e.member.ID, list.Participants[0].UserID)

	// Admin admits the member
	rec, _ = e.do(t, http.MethodPost, base+"/admit", adminTok, map[string]string{"user_id": e.member.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, http.MethodGet, base+"/status", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "admitted", status.Status)

	// Queue is empty afterwards
	rec, env = e.do(t, http.MethodGet, base+"/participants", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 0, list.Total)
}

func TestWaitingRoom_AdminBypasses(t *testing.T) {
	e := newTestEnv(t)
	adminTok := e.tokenFor(t, e.admin)

	rec, env := e.do(t, http.MethodPost, "/api/meetings/"+e.meeting.ID+"/waiting-room/join", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var join struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &join))
	assert.Equal(t, "admitted", join.Status)
}

func TestWaitingRoom_ErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	adminTok := e.tokenFor(t, e.admin)
	memberTok := e.tokenFor(t, e.member)
	lurkerTok := e.tokenFor(t, e.lurker)
	base := "/api/meetings/" + e.meeting.ID + "/waiting-room"

	// No token
	req := httptest.NewRequest(http.MethodPost, base+"/join", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Non-member cannot join
	r, env := e.do(t, http.MethodPost, base+"/join", lurkerTok, nil)
	assert.Equal(t, http.StatusForbidden, r.Code)
	require.NotNil(t, env.Error)

	// Plain member cannot see the queue or decide
	r, _ = e.do(t, http.MethodGet, base+"/participants", memberTok, nil)
	assert.Equal(t, http.StatusForbidden, r.Code)
	r, _ = e.do(t, http.MethodPost, base+"/admit", memberTok, map[string]string{"user_id": e.admin.ID})
	assert.Equal(t, http.StatusForbidden, r.Code)

	// Missing user_id
	r, env = e.do(t, http.MethodPost, base+"/admit", adminTok, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	// Target never joined
	r, _ = e.do(t, http.MethodPost, base+"/admit", adminTok, map[string]string{"user_id": e.member.ID})
	assert.Equal(t, http.StatusNotFound, r.Code)

	// Unknown meeting
	r, _ = e.do(t, http.MethodPost, "/api/meetings/no-such/waiting-room/join", memberTok, nil)
	assert.Equal(t, http.StatusNotFound, r.Code)

	// Status before joining is a 200 with a data-level answer
	r, env = e.do(t, http.MethodGet, base+"/status", memberTok, nil)
	assert.Equal(t, http.StatusOK, r.Code)
	var status struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "not_found", status.Status)
}

func TestMeetings_CreateAndLifecycle(t *testing.T) {
	e := newTestEnv(t)
	adminTok := e.tokenFor(t, e.admin)
	memberTok := e.tokenFor(t, e.member)

	// Only staff may schedule
	rec, _ := e.do(t, http.MethodPost, "/api/clubs/"+e.club.ID+"/meetings", memberTok, map[string]interface{}{
		"title":        "forbidden",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := e.do(t, http.MethodPost, "/api/clubs/"+e.club.ID+"/meetings", adminTok, map[string]interface{}{
		"title":                "Chapter 5",
		"scheduled_at":         time.Now().Add(2 * time.Hour).Format(time.RFC3339),
		"waiting_room_enabled": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Meeting models.Meeting `json:"meeting"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created.Meeting.RoomID)
	assert.Equal(t, models.MeetingScheduled, created.Meeting.Status)

	meetingPath := "/api/meetings/" + created.Meeting.ID

	// scheduled -> in_progress -> recording -> in_progress -> completed
	rec, _ = e.do(t, http.MethodPost, meetingPath+"/start", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodPost, meetingPath+"/recording/start", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodPost, meetingPath+"/recording/stop", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = e.do(t, http.MethodPost, meetingPath+"/complete", adminTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Completed meetings cannot be cancelled
	rec, env = e.do(t, http.MethodPost, meetingPath+"/cancel", adminTok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
}

func TestClubs_MembershipBoundary(t *testing.T) {
	e := newTestEnv(t)
	lurkerTok := e.tokenFor(t, e.lurker)
	memberTok := e.tokenFor(t, e.member)

	rec, _ := e.do(t, http.MethodGet, "/api/clubs/"+e.club.ID, lurkerTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/clubs/"+e.club.ID+"/members", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Inviting is admin-only
	rec, _ = e.do(t, http.MethodPost, "/api/clubs/"+e.club.ID+"/invite", memberTok, map[string]string{"email": "x@y.z"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFollows(t *testing.T) {
	e := newTestEnv(t)
	memberTok := e.tokenFor(t, e.member)

	rec, _ := e.do(t, http.MethodPost, "/api/users/"+e.member.ID+"/follow", memberTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/users/"+e.admin.ID+"/follow", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := e.do(t, http.MethodGet, "/api/users/"+e.admin.ID+"/followers", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var followers struct {
		Followers []models.PublicProfile `json:"followers"`
		Total     int                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &followers))
	require.Equal(t, 1, followers.Total)
	assert.Equal(t, e.member.ID, followers.Followers[0].ID)

	rec, _ = e.do(t, http.MethodDelete, "/api/users/"+e.admin.ID+"/follow", memberTok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBooks_ProgressMarksRead(t *testing.T) {
	e := newTestEnv(t)
	memberTok := e.tokenFor(t, e.member)

	rec, env := e.do(t, http.MethodPost, "/api/books", memberTok, map[string]interface{}{
		"title":       "The Dispossessed",
		"author":      "Ursula K. Le Guin",
		"total_pages": 400,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Book models.Book `json:"book"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, models.BookWantToRead, created.Book.Status)

	bookPath := "/api/books/" + created.Book.ID

	rec, env = e.do(t, http.MethodPost, bookPath+"/progress", memberTok, map[string]int{"page": 120})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		Book models.Book `json:"book"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.BookReading, updated.Book.Status)
	assert.Equal(t, 120, updated.Book.CurrentPage)

	// Reaching the last page flips the shelf status
	rec, env = e.do(t, http.MethodPost, bookPath+"/progress", memberTok, map[string]int{"page": 400})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.BookRead, updated.Book.Status)

	// Another reader cannot touch it
	adminTok := e.tokenFor(t, e.admin)
	rec, _ = e.do(t, http.MethodPost, bookPath+"/progress", adminTok, map[string]int{"page": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// faultyMemberStore fails AddClubMember on demand to exercise the
// invitation-accept error path.
type faultyMemberStore struct {
	*database.MemoryStore
	addMemberErr error
}

func (s *faultyMemberStore) AddClubMember(m *models.ClubMembership) error {
	if s.addMemberErr != nil {
		return s.addMemberErr
	}
	return s.MemoryStore.AddClubMember(m)
}

func TestAcceptInvitation_MemberInsertFailure(t *testing.T) {
	cfg := &config.Config{
		Environment:    "test",
		Port:           "0",
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"*"},
	}
	store := &faultyMemberStore{MemoryStore: database.NewMemoryStore()}
	logger := zerolog.Nop()
	router := NewRouter(cfg, store, cache.NewMemoryCache(), mailer.NewLogMailer(logger), logger)

	owner := &models.User{Email: "owner@example.com", Username: "owner", Password: "x"}
	require.NoError(t, store.CreateUser(owner))
	joiner := &models.User{Email: "joiner@example.com", Username: "joiner", Password: "x"}
	require.NoError(t, store.CreateUser(joiner))

	club := &models.BookClub{Name: "Night Readers", CreatedBy: owner.ID}
	require.NoError(t, store.CreateClub(club))

	inv := &models.ClubInvitation{
		ClubID:    club.ID,
		Email:     joiner.Email,
		InviterID: owner.ID,
		Token:     "invite-token-1",
		Status:    models.InvitationPending,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateInvitation(inv))

	jwtSvc := utils.NewJWTService(testSecret)
	access, _, err := jwtSvc.GenerateAccessToken(joiner.ID, joiner.Email)
	require.NoError(t, err)

	accept := func() (*httptest.ResponseRecorder, envelope) {
		body, _ := json.Marshal(map[string]string{"token": inv.Token})
		req := httptest.NewRequest(http.MethodPost, "/api/clubs/invitations/accept", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		return rec, env
	}

	// Membership insert fails: the request errors and the invitation
	// must stay pending, not be marked accepted
	store.addMemberErr = errors.New("connection reset by peer")
	rec, env := accept()
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)

	stored, err := store.GetInvitationByToken(inv.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationPending, stored.Status)
	assert.Nil(t, stored.AcceptedBy)

	role, err := store.GetClubRole(club.ID, joiner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, role)

	// With the store healthy again the same token still works
	store.addMemberErr = nil
	rec, _ = accept()
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err = store.GetInvitationByToken(inv.Token)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAccepted, stored.Status)

	role, err = store.GetClubRole(club.ID, joiner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, role)
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
