package database

import (
	"sort"
	"sync"
	"time"

	"ebe-backend/pkg/models"

	"github.com/google/uuid"
)

// MemoryStore 内存数据库实现：用于开发与测试，进程退出即丢失。
// 所有写操作持锁，保证单个操作的原子性（与 Postgres 单行写对应）。
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]*models.User           // by id
	clubs       map[string]*models.BookClub       // by id
	memberships map[string]*models.ClubMembership // by id
	invitations map[string]*models.ClubInvitation // by id
	meetings    map[string]*models.Meeting        // by id
	waiting     map[string]*models.WaitingParticipant
	books       map[string]*models.Book
	reviews     map[string]*models.Review
	follows     map[string]map[string]time.Time // follower -> followee -> since
}

// NewMemoryStore 创建内存数据库实例
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*models.User),
		clubs:       make(map[string]*models.BookClub),
		memberships: make(map[string]*models.ClubMembership),
		invitations: make(map[string]*models.ClubInvitation),
		meetings:    make(map[string]*models.Meeting),
		waiting:     make(map[string]*models.WaitingParticipant),
		books:       make(map[string]*models.Book),
		reviews:     make(map[string]*models.Review),
		follows:     make(map[string]map[string]time.Time),
	}
}

var _ Store = (*MemoryStore)(nil)

// waitingKey 等待记录以 (meetingID, userID) 为键
func waitingKey(meetingID, userID string) string {
	return meetingID + "/" + userID
}

// ---- 用户管理 ----

func (s *MemoryStore) CreateUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return notDup("email or username taken")
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUserByEmail(email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFound("user")
}

func (s *MemoryStore) GetUserByID(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUser(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return notFound("user")
	}
	existing.Name = user.Name
	existing.Avatar = user.Avatar
	existing.IsVerified = user.IsVerified
	existing.UpdatedAt = time.Now()
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

// ---- Book clubs & memberships ----

func (s *MemoryStore) CreateClub(club *models.BookClub) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if club.ID == "" {
		club.ID = uuid.New().String()
	}
	club.CreatedAt = time.Now()
	club.UpdatedAt = club.CreatedAt
	cp := *club
	s.clubs[club.ID] = &cp
	return nil
}

func (s *MemoryStore) GetClub(clubID string) (*models.BookClub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clubs[clubID]
	if !ok {
		return nil, notFound("club")
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListUserClubs(userID string) ([]models.BookClub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var clubs []models.BookClub
	for _, m := range s.memberships {
		if m.UserID == userID {
			if c, ok := s.clubs[m.ClubID]; ok {
				clubs = append(clubs, *c)
			}
		}
	}
	sort.Slice(clubs, func(i, j int) bool { return clubs[i].CreatedAt.After(clubs[j].CreatedAt) })
	return clubs, nil
}

func (s *MemoryStore) AddClubMember(m *models.ClubMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.memberships {
		if existing.ClubID == m.ClubID && existing.UserID == m.UserID {
			return notDup("already a member")
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	cp := *m
	s.memberships[m.ID] = &cp
	return nil
}

func (s *MemoryStore) ListClubMembers(clubID string) ([]models.ClubMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var members []models.ClubMembership
	for _, m := range s.memberships {
		if m.ClubID == clubID {
			cp := *m
			if u, ok := s.users[m.UserID]; ok {
				cp.User = u.Public()
			}
			members = append(members, cp)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CreatedAt.Before(members[j].CreatedAt) })
	return members, nil
}

func (s *MemoryStore) GetClubRole(clubID, userID string) (models.ClubRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.ClubID == clubID && m.UserID == userID {
			return m.Role, nil
		}
	}
	return models.RoleNone, nil
}

func (s *MemoryStore) UpdateClubMemberRole(clubID, userID string, role models.ClubRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.memberships {
		if m.ClubID == clubID && m.UserID == userID {
			m.Role = role
			return nil
		}
	}
	return notFound("membership")
}

// ---- Invitations ----

func (s *MemoryStore) CreateInvitation(inv *models.ClubInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	cp := *inv
	s.invitations[inv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetInvitationByToken(token string) (*models.ClubInvitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invitations {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, notFound("invitation")
}

func (s *MemoryStore) UpdateInvitation(inv *models.ClubInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.invitations[inv.ID]
	if !ok {
		return notFound("invitation")
	}
	existing.Status = inv.Status
	existing.AcceptedBy = inv.AcceptedBy
	existing.UpdatedAt = time.Now()
	return nil
}

// ---- Meetings ----

func (s *MemoryStore) CreateMeeting(m *models.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	cp := *m
	s.meetings[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMeeting(meetingID string) (*models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meetings[meetingID]
	if !ok {
		return nil, notFound("meeting")
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListClubMeetings(clubID string) ([]models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var meetings []models.Meeting
	for _, m := range s.meetings {
		if m.ClubID == clubID {
			meetings = append(meetings, *m)
		}
	}
	sort.Slice(meetings, func(i, j int) bool { return meetings[i].ScheduledAt.After(meetings[j].ScheduledAt) })
	return meetings, nil
}

func (s *MemoryStore) UpdateMeetingStatus(meetingID string, status models.MeetingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[meetingID]
	if !ok {
		return notFound("meeting")
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	return nil
}

// ---- Waiting room ----

func (s *MemoryStore) UpsertWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := waitingKey(meetingID, userID)
	p, ok := s.waiting[key]
	if !ok {
		p = &models.WaitingParticipant{
			ID:        uuid.New().String(),
			MeetingID: meetingID,
			UserID:    userID,
		}
		s.waiting[key] = p
	}
	// 重复加入：覆盖状态、重置 joined_at
	p.Status = models.WaitingStatusWaiting
	p.JoinedAt = time.Now()

	cp := *p
	s.attachWaitingUserLocked(&cp)
	return &cp, nil
}

func (s *MemoryStore) GetWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.waiting[waitingKey(meetingID, userID)]
	if !ok {
		return nil, notFound("waiting participant")
	}
	cp := *p
	s.attachWaitingUserLocked(&cp)
	return &cp, nil
}

func (s *MemoryStore) ListWaitingParticipants(meetingID string) ([]models.WaitingParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var participants []models.WaitingParticipant
	for _, p := range s.waiting {
		if p.MeetingID == meetingID && p.Status == models.WaitingStatusWaiting {
			cp := *p
			s.attachWaitingUserLocked(&cp)
			participants = append(participants, cp)
		}
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})
	return participants, nil
}

func (s *MemoryStore) SetWaitingStatus(meetingID, userID string, status models.WaitingStatus) (*models.WaitingParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.waiting[waitingKey(meetingID, userID)]
	if !ok {
		return nil, notFound("waiting participant")
	}
	p.Status = status

	cp := *p
	s.attachWaitingUserLocked(&cp)
	return &cp, nil
}

// attachWaitingUserLocked 补充用户展示字段；调用方须已持锁
func (s *MemoryStore) attachWaitingUserLocked(p *models.WaitingParticipant) {
	if u, ok := s.users[p.UserID]; ok {
		p.User = u.Public()
	} else {
		p.User.ID = p.UserID
	}
}

// ---- Books & reviews ----

func (s *MemoryStore) CreateBook(b *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	s.books[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBook(bookID string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[bookID]
	if !ok {
		return nil, notFound("book")
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) ListUserBooks(userID string) ([]models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var books []models.Book
	for _, b := range s.books {
		if b.UserID == userID {
			books = append(books, *b)
		}
	}
	sort.Slice(books, func(i, j int) bool { return books[i].UpdatedAt.After(books[j].UpdatedAt) })
	return books, nil
}

func (s *MemoryStore) UpdateBook(b *models.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.books[b.ID]
	if !ok {
		return notFound("book")
	}
	existing.Title = b.Title
	existing.Author = b.Author
	existing.ISBN = b.ISBN
	existing.CoverURL = b.CoverURL
	existing.Status = b.Status
	existing.TotalPages = b.TotalPages
	existing.CurrentPage = b.CurrentPage
	existing.UpdatedAt = time.Now()
	b.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteBook(bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[bookID]; !ok {
		return notFound("book")
	}
	delete(s.books, bookID)
	for id, rv := range s.reviews {
		if rv.BookID == bookID {
			delete(s.reviews, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateReview(rv *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rv.ID == "" {
		rv.ID = uuid.New().String()
	}
	rv.CreatedAt = time.Now()
	rv.UpdatedAt = rv.CreatedAt
	cp := *rv
	s.reviews[rv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetReview(reviewID string) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rv, ok := s.reviews[reviewID]
	if !ok {
		return nil, notFound("review")
	}
	cp := *rv
	return &cp, nil
}

func (s *MemoryStore) ListBookReviews(bookID string) ([]models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reviews []models.Review
	for _, rv := range s.reviews {
		if rv.BookID == bookID {
			cp := *rv
			if u, ok := s.users[rv.UserID]; ok {
				cp.User = u.Public()
			}
			reviews = append(reviews, cp)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews, nil
}

func (s *MemoryStore) DeleteReview(reviewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[reviewID]; !ok {
		return notFound("review")
	}
	delete(s.reviews, reviewID)
	return nil
}

// ---- Follows ----

func (s *MemoryStore) AddFollow(followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]time.Time)
	}
	if _, ok := s.follows[followerID][followeeID]; !ok {
		s.follows[followerID][followeeID] = time.Now()
	}
	return nil
}

func (s *MemoryStore) RemoveFollow(followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.follows[followerID]; ok {
		delete(m, followeeID)
	}
	return nil
}

func (s *MemoryStore) ListFollowers(userID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []models.User
	for followerID, followees := range s.follows {
		if _, ok := followees[userID]; ok {
			if u, exists := s.users[followerID]; exists {
				users = append(users, *u)
			}
		}
	}
	return users, nil
}

func (s *MemoryStore) ListFollowing(userID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []models.User
	for followeeID := range s.follows[userID] {
		if u, exists := s.users[followeeID]; exists {
			users = append(users, *u)
		}
	}
	return users, nil
}

// HealthCheck 健康检查（内存实现恒为健康）
func (s *MemoryStore) HealthCheck() error {
	return nil
}

// Close 关闭连接（内存实现无需关闭）
func (s *MemoryStore) Close() error {
	return nil
}
