package handlers

import (
	"errors"
	"net/http"

	"ebe-backend/pkg/database"
	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

type UsersHandler struct {
	db database.Store
}

func NewUsersHandler(db database.Store) *UsersHandler {
	return &UsersHandler{db: db}
}

// GET /api/users/{userID}
func (h *UsersHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	userID := chiRoute.URLParam(r, "userID")
	user, err := h.db.GetUserByID(userID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"user": user.Public()})
}

// POST /api/users/{userID}/follow
func (h *UsersHandler) Follow(w http.ResponseWriter, r *http.Request) {
	me, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	targetID := chiRoute.URLParam(r, "userID")

	if targetID == me.ID {
		utils.WriteBadRequestResponse(w, "Cannot follow yourself")
		return
	}
	if _, err := h.db.GetUserByID(targetID); err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	if err := h.db.AddFollow(me.ID, targetID); err != nil {
		// 重复关注视为成功
		if !errors.Is(err, database.ErrDuplicate) {
			utils.WriteInternalServerErrorResponse(w, "Failed to follow user")
			return
		}
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"following": targetID})
}

// DELETE /api/users/{userID}/follow
func (h *UsersHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	me, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	targetID := chiRoute.URLParam(r, "userID")

	if err := h.db.RemoveFollow(me.ID, targetID); err != nil && !database.IsNotFound(err) {
		utils.WriteInternalServerErrorResponse(w, "Failed to unfollow user")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"unfollowed": targetID})
}

// GET /api/users/{userID}/followers
func (h *UsersHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	h.listRelated(w, r, h.db.ListFollowers, "followers")
}

// GET /api/users/{userID}/following
func (h *UsersHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	h.listRelated(w, r, h.db.ListFollowing, "following")
}

func (h *UsersHandler) listRelated(w http.ResponseWriter, r *http.Request, list func(string) ([]models.User, error), key string) {
	if _, err := middleware.RequireUser(r.Context()); err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	userID := chiRoute.URLParam(r, "userID")
	if _, err := h.db.GetUserByID(userID); err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	users, err := list(userID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list users")
		return
	}
	profiles := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{key: profiles, "total": len(profiles)})
}
