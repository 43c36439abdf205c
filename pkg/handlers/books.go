package handlers

import (
	"net/http"
	"strings"

	"ebe-backend/pkg/database"
	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

type BooksHandler struct {
	db database.Store
}

func NewBooksHandler(db database.Store) *BooksHandler {
	return &BooksHandler{db: db}
}

func validBookStatus(s models.BookStatus) bool {
	switch s {
	case models.BookWantToRead, models.BookReading, models.BookRead:
		return true
	}
	return false
}

// POST /api/books
func (h *BooksHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}

	var req struct {
		Title      string            `json:"title"`
		Author     string            `json:"author"`
		ISBN       string            `json:"isbn"`
		CoverURL   string            `json:"cover_url"`
		Status     models.BookStatus `json:"status"`
		TotalPages int               `json:"total_pages"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		utils.WriteValidationErrorResponse(w, "title required", "")
		return
	}
	if req.Status == "" {
		req.Status = models.BookWantToRead
	}
	if !validBookStatus(req.Status) {
		utils.WriteValidationErrorResponse(w, "invalid status", "")
		return
	}

	book := &models.Book{
		UserID:     user.ID,
		Title:      req.Title,
		Author:     req.Author,
		ISBN:       req.ISBN,
		CoverURL:   req.CoverURL,
		Status:     req.Status,
		TotalPages: req.TotalPages,
	}
	if err := h.db.CreateBook(book); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create book")
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"book": book})
}

// GET /api/books
func (h *BooksHandler) ListMyBooks(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	books, err := h.db.ListUserBooks(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list books")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"books": books, "total": len(books)})
}

// GET /api/books/{bookID}
func (h *BooksHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	_, book, ok := h.loadOwnBook(w, r)
	if !ok {
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"book": book})
}

// POST /api/books/{bookID}/progress
//
// 读完最后一页自动把书标记为已读。
func (h *BooksHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	_, book, ok := h.loadOwnBook(w, r)
	if !ok {
		return
	}

	var req struct {
		Page int `json:"page"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.Page < 0 {
		utils.WriteValidationErrorResponse(w, "page cannot be negative", "")
		return
	}
	if book.TotalPages > 0 && req.Page > book.TotalPages {
		req.Page = book.TotalPages
	}

	book.CurrentPage = req.Page
	if book.Status == models.BookWantToRead {
		book.Status = models.BookReading
	}
	if book.TotalPages > 0 && req.Page >= book.TotalPages {
		book.Status = models.BookRead
	}

	if err := h.db.UpdateBook(book); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update progress")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"book": book})
}

// PUT /api/books/{bookID}
func (h *BooksHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	_, book, ok := h.loadOwnBook(w, r)
	if !ok {
		return
	}

	var req struct {
		Title       *string            `json:"title"`
		Author      *string            `json:"author"`
		CoverURL    *string            `json:"cover_url"`
		Status      *models.BookStatus `json:"status"`
		TotalPages  *int               `json:"total_pages"`
		CurrentPage *int               `json:"current_page"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			utils.WriteValidationErrorResponse(w, "title cannot be empty", "")
			return
		}
		book.Title = *req.Title
	}
	if req.Author != nil {
		book.Author = *req.Author
	}
	if req.CoverURL != nil {
		book.CoverURL = *req.CoverURL
	}
	if req.Status != nil {
		if !validBookStatus(*req.Status) {
			utils.WriteValidationErrorResponse(w, "invalid status", "")
			return
		}
		book.Status = *req.Status
	}
	if req.TotalPages != nil {
		book.TotalPages = *req.TotalPages
	}
	if req.CurrentPage != nil {
		if *req.CurrentPage < 0 {
			utils.WriteValidationErrorResponse(w, "current_page cannot be negative", "")
			return
		}
		book.CurrentPage = *req.CurrentPage
	}

	if err := h.db.UpdateBook(book); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to update book")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"book": book})
}

// DELETE /api/books/{bookID}
func (h *BooksHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	_, book, ok := h.loadOwnBook(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteBook(book.ID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete book")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"deleted": book.ID})
}

// POST /api/books/{bookID}/reviews
func (h *BooksHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	bookID := chiRoute.URLParam(r, "bookID")

	if _, err := h.db.GetBook(bookID); err != nil {
		utils.WriteNotFoundResponse(w, "Book not found")
		return
	}

	var req struct {
		Rating int    `json:"rating"`
		Body   string `json:"body"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		utils.WriteValidationErrorResponse(w, "rating must be between 1 and 5", "")
		return
	}

	review := &models.Review{
		BookID: bookID,
		UserID: user.ID,
		Rating: req.Rating,
		Body:   req.Body,
	}
	if err := h.db.CreateReview(review); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create review")
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"review": review})
}

// GET /api/books/{bookID}/reviews
func (h *BooksHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	bookID := chiRoute.URLParam(r, "bookID")
	if _, err := h.db.GetBook(bookID); err != nil {
		utils.WriteNotFoundResponse(w, "Book not found")
		return
	}
	reviews, err := h.db.ListBookReviews(bookID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list reviews")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"reviews": reviews, "total": len(reviews)})
}

// DELETE /api/reviews/{reviewID}
func (h *BooksHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	reviewID := chiRoute.URLParam(r, "reviewID")

	review, err := h.db.GetReview(reviewID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Review not found")
		return
	}
	if review.UserID != user.ID {
		utils.WriteForbiddenResponse(w, "Not your review")
		return
	}
	if err := h.db.DeleteReview(reviewID); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to delete review")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"deleted": reviewID})
}

func (h *BooksHandler) loadOwnBook(w http.ResponseWriter, r *http.Request) (*models.User, *models.Book, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return nil, nil, false
	}
	bookID := chiRoute.URLParam(r, "bookID")
	book, err := h.db.GetBook(bookID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Book not found")
		return nil, nil, false
	}
	if book.UserID != user.ID {
		utils.WriteForbiddenResponse(w, "Not your book")
		return nil, nil, false
	}
	return user, book, true
}
