package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ebe-backend/pkg/models"

	"github.com/lib/pq"
)

// PostgresStore PostgreSQL数据库实现
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建PostgreSQL数据库实例
func NewPostgresStore(dsn string) (Store, error) {
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	// 连接池参数：人类节奏的负载，小池即可
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// isUniqueViolation 判断是否唯一约束冲突
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// ---- 用户管理 ----

// CreateUser 创建用户
func (s *PostgresStore) CreateUser(user *models.User) error {
	query := `
		INSERT INTO users (email, password_hash, username, name, avatar, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, user.Email, user.Password, user.Username, user.Name, user.Avatar, user.IsVerified).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email or username taken: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *PostgresStore) GetUserByEmail(email string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(password_hash,''), username, COALESCE(name,''), COALESCE(avatar,''),
		       is_verified, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var u models.User
	err := s.db.QueryRow(query, email).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username, &u.Name, &u.Avatar, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &u, nil
}

// GetUserByID 根据ID获取用户
func (s *PostgresStore) GetUserByID(id string) (*models.User, error) {
	query := `
		SELECT id, email, COALESCE(password_hash,''), username, COALESCE(name,''), COALESCE(avatar,''),
		       is_verified, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var u models.User
	err := s.db.QueryRow(query, id).Scan(
		&u.ID, &u.Email, &u.Password, &u.Username, &u.Name, &u.Avatar, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// UpdateUser 更新用户
func (s *PostgresStore) UpdateUser(user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID is required for update")
	}
	query := `
		UPDATE users
		SET name = $1, avatar = $2, is_verified = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := s.db.Exec(query, user.Name, user.Avatar, user.IsVerified, user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// ---- Book clubs & memberships ----

// CreateClub 创建读书会
func (s *PostgresStore) CreateClub(club *models.BookClub) error {
	query := `
		INSERT INTO book_clubs (name, description, avatar, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, club.Name, club.Description, club.Avatar, club.CreatedBy).
		Scan(&club.ID, &club.CreatedAt, &club.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create club: %w", err)
	}
	return nil
}

// GetClub 获取读书会
func (s *PostgresStore) GetClub(clubID string) (*models.BookClub, error) {
	query := `
		SELECT id, name, COALESCE(description,''), COALESCE(avatar,''), created_by, created_at, updated_at
		FROM book_clubs
		WHERE id = $1
	`
	var c models.BookClub
	err := s.db.QueryRow(query, clubID).Scan(
		&c.ID, &c.Name, &c.Description, &c.Avatar, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("club")
		}
		return nil, fmt.Errorf("failed to get club: %w", err)
	}
	return &c, nil
}

// ListUserClubs 列出用户所在的读书会
func (s *PostgresStore) ListUserClubs(userID string) ([]models.BookClub, error) {
	query := `
		SELECT c.id, c.name, COALESCE(c.description,''), COALESCE(c.avatar,''), c.created_by, c.created_at, c.updated_at
		FROM book_clubs c
		JOIN club_memberships m ON m.club_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC
	`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clubs: %w", err)
	}
	defer rows.Close()

	var clubs []models.BookClub
	for rows.Next() {
		var c models.BookClub
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Avatar, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan club: %w", err)
		}
		clubs = append(clubs, c)
	}
	return clubs, rows.Err()
}

// AddClubMember 添加成员
func (s *PostgresStore) AddClubMember(m *models.ClubMembership) error {
	query := `
		INSERT INTO club_memberships (club_id, user_id, role, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := s.db.QueryRow(query, m.ClubID, m.UserID, m.Role).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("already a member: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// ListClubMembers 列出成员（带用户展示字段）
func (s *PostgresStore) ListClubMembers(clubID string) ([]models.ClubMembership, error) {
	query := `
		SELECT m.id, m.club_id, m.user_id, m.role, m.created_at,
		       u.username, COALESCE(u.name,''), COALESCE(u.avatar,'')
		FROM club_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.club_id = $1
		ORDER BY m.created_at ASC
	`
	rows, err := s.db.Query(query, clubID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.ClubMembership
	for rows.Next() {
		var m models.ClubMembership
		if err := rows.Scan(&m.ID, &m.ClubID, &m.UserID, &m.Role, &m.CreatedAt,
			&m.User.Username, &m.User.Name, &m.User.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.User.ID = m.UserID
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetClubRole 查询用户在读书会中的角色；非成员返回 RoleNone（不视为错误）
func (s *PostgresStore) GetClubRole(clubID, userID string) (models.ClubRole, error) {
	query := `SELECT role FROM club_memberships WHERE club_id = $1 AND user_id = $2`
	var role models.ClubRole
	err := s.db.QueryRow(query, clubID, userID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.RoleNone, nil
		}
		return models.RoleNone, fmt.Errorf("failed to get club role: %w", err)
	}
	return role, nil
}

// UpdateClubMemberRole 修改成员角色
func (s *PostgresStore) UpdateClubMemberRole(clubID, userID string, role models.ClubRole) error {
	query := `UPDATE club_memberships SET role = $1 WHERE club_id = $2 AND user_id = $3`
	res, err := s.db.Exec(query, role, clubID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("membership")
	}
	return nil
}

// ---- Invitations ----

// CreateInvitation 创建邀请
func (s *PostgresStore) CreateInvitation(inv *models.ClubInvitation) error {
	query := `
		INSERT INTO club_invitations (club_id, email, inviter_id, token, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, inv.ClubID, inv.Email, inv.InviterID, inv.Token, inv.Status, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitationByToken 根据token获取邀请
func (s *PostgresStore) GetInvitationByToken(token string) (*models.ClubInvitation, error) {
	query := `
		SELECT id, club_id, email, inviter_id, token, status, expires_at, accepted_by, created_at, updated_at
		FROM club_invitations
		WHERE token = $1
	`
	var inv models.ClubInvitation
	err := s.db.QueryRow(query, token).Scan(
		&inv.ID, &inv.ClubID, &inv.Email, &inv.InviterID, &inv.Token, &inv.Status,
		&inv.ExpiresAt, &inv.AcceptedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("invitation")
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// UpdateInvitation 更新邀请状态
func (s *PostgresStore) UpdateInvitation(inv *models.ClubInvitation) error {
	query := `
		UPDATE club_invitations
		SET status = $1, accepted_by = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := s.db.Exec(query, inv.Status, inv.AcceptedBy, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	return nil
}

// ---- Meetings ----

// CreateMeeting 创建会议
func (s *PostgresStore) CreateMeeting(m *models.Meeting) error {
	query := `
		INSERT INTO meetings (club_id, title, created_by, scheduled_at, duration_minutes, status, waiting_room_enabled, room_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, m.ClubID, m.Title, m.CreatedBy, m.ScheduledAt, m.DurationMinutes,
		m.Status, m.WaitingRoomEnabled, m.RoomID).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}
	return nil
}

// GetMeeting 获取会议
func (s *PostgresStore) GetMeeting(meetingID string) (*models.Meeting, error) {
	query := `
		SELECT id, club_id, title, created_by, scheduled_at, duration_minutes, status, waiting_room_enabled,
		       COALESCE(room_id,''), created_at, updated_at
		FROM meetings
		WHERE id = $1
	`
	var m models.Meeting
	err := s.db.QueryRow(query, meetingID).Scan(
		&m.ID, &m.ClubID, &m.Title, &m.CreatedBy, &m.ScheduledAt, &m.DurationMinutes,
		&m.Status, &m.WaitingRoomEnabled, &m.RoomID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("meeting")
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return &m, nil
}

// ListClubMeetings 列出读书会的会议
func (s *PostgresStore) ListClubMeetings(clubID string) ([]models.Meeting, error) {
	query := `
		SELECT id, club_id, title, created_by, scheduled_at, duration_minutes, status, waiting_room_enabled,
		       COALESCE(room_id,''), created_at, updated_at
		FROM meetings
		WHERE club_id = $1
		ORDER BY scheduled_at DESC
	`
	rows, err := s.db.Query(query, clubID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		if err := rows.Scan(&m.ID, &m.ClubID, &m.Title, &m.CreatedBy, &m.ScheduledAt, &m.DurationMinutes,
			&m.Status, &m.WaitingRoomEnabled, &m.RoomID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}
	return meetings, rows.Err()
}

// UpdateMeetingStatus 更新会议状态
func (s *PostgresStore) UpdateMeetingStatus(meetingID string, status models.MeetingStatus) error {
	query := `UPDATE meetings SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := s.db.Exec(query, status, meetingID)
	if err != nil {
		return fmt.Errorf("failed to update meeting status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("meeting")
	}
	return nil
}

// ---- Waiting room ----

// UpsertWaitingParticipant 等待记录 upsert：同一 (meeting, user) 重复加入时
// 覆盖状态并重置 joined_at（与快照保存相同的 ON CONFLICT 写法）
func (s *PostgresStore) UpsertWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error) {
	query := `
		INSERT INTO waiting_participants (meeting_id, user_id, status, joined_at)
		VALUES ($1, $2, 'waiting', NOW())
		ON CONFLICT (meeting_id, user_id)
		DO UPDATE SET status = 'waiting', joined_at = NOW()
		RETURNING id, status, joined_at
	`
	p := &models.WaitingParticipant{MeetingID: meetingID, UserID: userID}
	err := s.db.QueryRow(query, meetingID, userID).Scan(&p.ID, &p.Status, &p.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert waiting participant: %w", err)
	}
	s.attachWaitingUser(p)
	return p, nil
}

// GetWaitingParticipant 获取等待记录
func (s *PostgresStore) GetWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error) {
	query := `
		SELECT w.id, w.meeting_id, w.user_id, w.status, w.joined_at,
		       u.username, COALESCE(u.name,''), COALESCE(u.avatar,'')
		FROM waiting_participants w
		JOIN users u ON u.id = w.user_id
		WHERE w.meeting_id = $1 AND w.user_id = $2
	`
	var p models.WaitingParticipant
	err := s.db.QueryRow(query, meetingID, userID).Scan(
		&p.ID, &p.MeetingID, &p.UserID, &p.Status, &p.JoinedAt,
		&p.User.Username, &p.User.Name, &p.User.Avatar,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("waiting participant")
		}
		return nil, fmt.Errorf("failed to get waiting participant: %w", err)
	}
	p.User.ID = p.UserID
	return &p, nil
}

// ListWaitingParticipants 列出仍在等待的参与者，按 joined_at 先来先到排序
func (s *PostgresStore) ListWaitingParticipants(meetingID string) ([]models.WaitingParticipant, error) {
	query := `
		SELECT w.id, w.meeting_id, w.user_id, w.status, w.joined_at,
		       u.username, COALESCE(u.name,''), COALESCE(u.avatar,'')
		FROM waiting_participants w
		JOIN users u ON u.id = w.user_id
		WHERE w.meeting_id = $1 AND w.status = 'waiting'
		ORDER BY w.joined_at ASC
	`
	rows, err := s.db.Query(query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting participants: %w", err)
	}
	defer rows.Close()

	var participants []models.WaitingParticipant
	for rows.Next() {
		var p models.WaitingParticipant
		if err := rows.Scan(&p.ID, &p.MeetingID, &p.UserID, &p.Status, &p.JoinedAt,
			&p.User.Username, &p.User.Name, &p.User.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan waiting participant: %w", err)
		}
		p.User.ID = p.UserID
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// SetWaitingStatus 设置等待记录状态（单行原子更新，幂等）
func (s *PostgresStore) SetWaitingStatus(meetingID, userID string, status models.WaitingStatus) (*models.WaitingParticipant, error) {
	query := `
		UPDATE waiting_participants
		SET status = $1
		WHERE meeting_id = $2 AND user_id = $3
		RETURNING id, joined_at
	`
	p := &models.WaitingParticipant{MeetingID: meetingID, UserID: userID, Status: status}
	err := s.db.QueryRow(query, status, meetingID, userID).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("waiting participant")
		}
		return nil, fmt.Errorf("failed to set waiting status: %w", err)
	}
	s.attachWaitingUser(p)
	return p, nil
}

// attachWaitingUser 补充用户展示字段；失败不致命，仅留空
func (s *PostgresStore) attachWaitingUser(p *models.WaitingParticipant) {
	query := `SELECT username, COALESCE(name,''), COALESCE(avatar,'') FROM users WHERE id = $1`
	_ = s.db.QueryRow(query, p.UserID).Scan(&p.User.Username, &p.User.Name, &p.User.Avatar)
	p.User.ID = p.UserID
}

// ---- Books & reviews ----

// CreateBook 上架一本书
func (s *PostgresStore) CreateBook(b *models.Book) error {
	query := `
		INSERT INTO books (user_id, title, author, isbn, cover_url, status, total_pages, current_page, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, b.UserID, b.Title, b.Author, b.ISBN, b.CoverURL, b.Status, b.TotalPages, b.CurrentPage).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

// GetBook 获取书
func (s *PostgresStore) GetBook(bookID string) (*models.Book, error) {
	query := `
		SELECT id, user_id, title, COALESCE(author,''), COALESCE(isbn,''), COALESCE(cover_url,''),
		       status, total_pages, current_page, created_at, updated_at
		FROM books
		WHERE id = $1
	`
	var b models.Book
	err := s.db.QueryRow(query, bookID).Scan(
		&b.ID, &b.UserID, &b.Title, &b.Author, &b.ISBN, &b.CoverURL,
		&b.Status, &b.TotalPages, &b.CurrentPage, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("book")
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return &b, nil
}

// ListUserBooks 列出用户书架
func (s *PostgresStore) ListUserBooks(userID string) ([]models.Book, error) {
	query := `
		SELECT id, user_id, title, COALESCE(author,''), COALESCE(isbn,''), COALESCE(cover_url,''),
		       status, total_pages, current_page, created_at, updated_at
		FROM books
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer rows.Close()

	var books []models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(&b.ID, &b.UserID, &b.Title, &b.Author, &b.ISBN, &b.CoverURL,
			&b.Status, &b.TotalPages, &b.CurrentPage, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// UpdateBook 更新书
func (s *PostgresStore) UpdateBook(b *models.Book) error {
	query := `
		UPDATE books
		SET title = $1, author = $2, isbn = $3, cover_url = $4, status = $5,
		    total_pages = $6, current_page = $7, updated_at = NOW()
		WHERE id = $8
	`
	res, err := s.db.Exec(query, b.Title, b.Author, b.ISBN, b.CoverURL, b.Status, b.TotalPages, b.CurrentPage, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("book")
	}
	return nil
}

// DeleteBook 删除书（评论级联删除由外键处理）
func (s *PostgresStore) DeleteBook(bookID string) error {
	res, err := s.db.Exec(`DELETE FROM books WHERE id = $1`, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("book")
	}
	return nil
}

// CreateReview 创建评论
func (s *PostgresStore) CreateReview(rv *models.Review) error {
	query := `
		INSERT INTO reviews (book_id, user_id, rating, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRow(query, rv.BookID, rv.UserID, rv.Rating, rv.Body).
		Scan(&rv.ID, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	return nil
}

// GetReview 获取评论
func (s *PostgresStore) GetReview(reviewID string) (*models.Review, error) {
	query := `
		SELECT id, book_id, user_id, rating, COALESCE(body,''), created_at, updated_at
		FROM reviews
		WHERE id = $1
	`
	var rv models.Review
	err := s.db.QueryRow(query, reviewID).Scan(
		&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.Body, &rv.CreatedAt, &rv.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound("review")
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &rv, nil
}

// ListBookReviews 列出书的评论
func (s *PostgresStore) ListBookReviews(bookID string) ([]models.Review, error) {
	query := `
		SELECT r.id, r.book_id, r.user_id, r.rating, COALESCE(r.body,''), r.created_at, r.updated_at,
		       u.username, COALESCE(u.name,''), COALESCE(u.avatar,'')
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.book_id = $1
		ORDER BY r.created_at DESC
	`
	rows, err := s.db.Query(query, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []models.Review
	for rows.Next() {
		var rv models.Review
		if err := rows.Scan(&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.Body, &rv.CreatedAt, &rv.UpdatedAt,
			&rv.User.Username, &rv.User.Name, &rv.User.Avatar); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		rv.User.ID = rv.UserID
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}

// DeleteReview 删除评论
func (s *PostgresStore) DeleteReview(reviewID string) error {
	res, err := s.db.Exec(`DELETE FROM reviews WHERE id = $1`, reviewID)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("review")
	}
	return nil
}

// ---- Follows ----

// AddFollow 关注
func (s *PostgresStore) AddFollow(followerID, followeeID string) error {
	query := `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (follower_id, followee_id) DO NOTHING
	`
	if _, err := s.db.Exec(query, followerID, followeeID); err != nil {
		return fmt.Errorf("failed to add follow: %w", err)
	}
	return nil
}

// RemoveFollow 取消关注
func (s *PostgresStore) RemoveFollow(followerID, followeeID string) error {
	if _, err := s.db.Exec(`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID); err != nil {
		return fmt.Errorf("failed to remove follow: %w", err)
	}
	return nil
}

// ListFollowers 列出粉丝
func (s *PostgresStore) ListFollowers(userID string) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.username, COALESCE(u.name,''), COALESCE(u.avatar,''), u.is_verified, u.created_at, u.updated_at
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC
	`
	return s.queryUsers(query, userID)
}

// ListFollowing 列出关注的人
func (s *PostgresStore) ListFollowing(userID string) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.username, COALESCE(u.name,''), COALESCE(u.avatar,''), u.is_verified, u.created_at, u.updated_at
		FROM follows f
		JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
	`
	return s.queryUsers(query, userID)
}

func (s *PostgresStore) queryUsers(query string, args ...interface{}) ([]models.User, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.Avatar, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// HealthCheck 健康检查
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}

// Close 关闭连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
