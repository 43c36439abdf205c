package database

import (
	"errors"
	"fmt"

	"ebe-backend/pkg/models"
)

// 哨兵错误：两种实现统一返回，调用方用 errors.Is 判断
var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一约束冲突（邮箱、用户名、重复成员等）
	ErrDuplicate = errors.New("record already exists")
)

// Store 定义数据库访问接口
type Store interface {
	// 用户管理
	CreateUser(user *models.User) error
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	UpdateUser(user *models.User) error

	// Book clubs & memberships
	CreateClub(club *models.BookClub) error
	GetClub(clubID string) (*models.BookClub, error)
	ListUserClubs(userID string) ([]models.BookClub, error)
	AddClubMember(m *models.ClubMembership) error
	ListClubMembers(clubID string) ([]models.ClubMembership, error)
	// GetClubRole returns models.RoleNone (and no error) when the user
	// is not a member of the club.
	GetClubRole(clubID, userID string) (models.ClubRole, error)
	UpdateClubMemberRole(clubID, userID string, role models.ClubRole) error

	// Invitations
	CreateInvitation(inv *models.ClubInvitation) error
	GetInvitationByToken(token string) (*models.ClubInvitation, error)
	UpdateInvitation(inv *models.ClubInvitation) error

	// Meetings
	CreateMeeting(m *models.Meeting) error
	GetMeeting(meetingID string) (*models.Meeting, error)
	ListClubMeetings(clubID string) ([]models.Meeting, error)
	UpdateMeetingStatus(meetingID string, status models.MeetingStatus) error

	// Waiting room（等待室）：每个 (meeting, user) 至多一条记录
	UpsertWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error)
	GetWaitingParticipant(meetingID, userID string) (*models.WaitingParticipant, error)
	ListWaitingParticipants(meetingID string) ([]models.WaitingParticipant, error)
	SetWaitingStatus(meetingID, userID string, status models.WaitingStatus) (*models.WaitingParticipant, error)

	// Books & reviews
	CreateBook(b *models.Book) error
	GetBook(bookID string) (*models.Book, error)
	ListUserBooks(userID string) ([]models.Book, error)
	UpdateBook(b *models.Book) error
	DeleteBook(bookID string) error
	CreateReview(rv *models.Review) error
	GetReview(reviewID string) (*models.Review, error)
	ListBookReviews(bookID string) ([]models.Review, error)
	DeleteReview(reviewID string) error

	// Follows
	AddFollow(followerID, followeeID string) error
	RemoveFollow(followerID, followeeID string) error
	ListFollowers(userID string) ([]models.User, error)
	ListFollowing(userID string) ([]models.User, error)

	// 健康检查
	HealthCheck() error

	// 关闭连接
	Close() error
}

// Config 数据库配置
type Config struct {
	PostgresDSN string
	Debug       bool
}

// New 根据配置选择数据库实现：配置了 DSN 用 PostgreSQL，否则用内存实现
// （内存实现仅用于开发和测试，进程退出即丢失）
func New(cfg Config) (Store, error) {
	if cfg.PostgresDSN != "" {
		return NewPostgresStore(cfg.PostgresDSN)
	}
	return NewMemoryStore(), nil
}

// IsNotFound 判断错误是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// notFound 构造带上下文的 ErrNotFound
func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// notDup 构造带上下文的 ErrDuplicate
func notDup(what string) error {
	return fmt.Errorf("%s: %w", what, ErrDuplicate)
}
