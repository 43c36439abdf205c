package models

import "time"

type BookStatus string

const (
	BookWantToRead BookStatus = "want_to_read"
	BookReading    BookStatus = "reading"
	BookRead       BookStatus = "read"
)

// Book is one entry on a reader's shelf
type Book struct {
	ID          string     `json:"id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Author      string     `json:"author,omitempty" db:"author"`
	ISBN        string     `json:"isbn,omitempty" db:"isbn"`
	CoverURL    string     `json:"cover_url,omitempty" db:"cover_url"`
	Status      BookStatus `json:"status" db:"status"`
	TotalPages  int        `json:"total_pages,omitempty" db:"total_pages"`
	CurrentPage int        `json:"current_page" db:"current_page"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Review is a reader's review of a shelved book
type Review struct {
	ID        string    `json:"id" db:"id"`
	BookID    string    `json:"book_id" db:"book_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Rating    int       `json:"rating" db:"rating"` // 1..5
	Body      string    `json:"body,omitempty" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	User PublicProfile `json:"user,omitempty"`
}
