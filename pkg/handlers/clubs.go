package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ebe-backend/pkg/config"
	"ebe-backend/pkg/database"
	"ebe-backend/pkg/mailer"
	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const invitationTTL = 14 * 24 * time.Hour

type ClubsHandler struct {
	config *config.Config
	db     database.Store
	mail   mailer.Mailer
	logger zerolog.Logger
}

func NewClubsHandler(cfg *config.Config, db database.Store, mail mailer.Mailer, logger zerolog.Logger) *ClubsHandler {
	return &ClubsHandler{config: cfg, db: db, mail: mail, logger: logger}
}

// POST /api/clubs
func (h *ClubsHandler) CreateClub(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	var req struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Avatar       string   `json:"avatar"`
		InviteEmails []string `json:"invite_emails"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		utils.WriteValidationErrorResponse(w, "name required", "")
		return
	}

	club := &models.BookClub{Name: req.Name, Description: req.Description, Avatar: req.Avatar, CreatedBy: user.ID}
	if err := h.db.CreateClub(club); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Create club failed")
		return
	}

	// 创建者自动成为 admin
	if err := h.db.AddClubMember(&models.ClubMembership{ClubID: club.ID, UserID: user.ID, Role: models.RoleAdmin}); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to add creator membership")
		return
	}

	// 创建时附带的邀请：失败只记日志，不阻断
	for _, email := range req.InviteEmails {
		email = strings.TrimSpace(strings.ToLower(email))
		if email == "" {
			continue
		}
		if err := h.createAndSendInvitation(club, user.ID, email); err != nil {
			h.logger.Warn().Err(err).Str("email", email).Msg("failed to create invitation")
		}
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{"club": club})
}

// GET /api/clubs
func (h *ClubsHandler) ListMyClubs(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubs, err := h.db.ListUserClubs(user.ID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list clubs")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"clubs": clubs})
}

// GET /api/clubs/{clubID}
func (h *ClubsHandler) GetClub(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")
	if _, ok := requireClubMember(w, h.db, clubID, user.ID); !ok {
		return
	}
	club, err := h.db.GetClub(clubID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Club not found")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"club": club})
}

// GET /api/clubs/{clubID}/members
func (h *ClubsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")
	if _, ok := requireClubMember(w, h.db, clubID, user.ID); !ok {
		return
	}
	members, err := h.db.ListClubMembers(clubID)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to list members")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"members": members, "total": len(members)})
}

// POST /api/clubs/{clubID}/invite
func (h *ClubsHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")
	var req struct {
		Email string `json:"email"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		utils.WriteValidationErrorResponse(w, "email required", "")
		return
	}

	// 仅 admin 可邀请
	if !requireClubAdmin(w, h.db, clubID, user.ID) {
		return
	}

	club, err := h.db.GetClub(clubID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Club not found")
		return
	}

	if err := h.createAndSendInvitation(club, user.ID, req.Email); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to create invitation")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"invited": req.Email})
}

func (h *ClubsHandler) createAndSendInvitation(club *models.BookClub, inviterID, email string) error {
	tok, err := utils.GenerateURLToken(24)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	inv := &models.ClubInvitation{
		ClubID:    club.ID,
		Email:     email,
		InviterID: inviterID,
		Token:     tok,
		Status:    models.InvitationPending,
		ExpiresAt: time.Now().Add(invitationTTL),
	}
	if err := h.db.CreateInvitation(inv); err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	_ = h.mail.Send(email, fmt.Sprintf("You're invited to join %s on ebe", club.Name),
		fmt.Sprintf("Use this invitation code to join %s: %s", club.Name, tok))
	return nil
}

// POST /api/clubs/invitations/accept
func (h *ClubsHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.Token == "" {
		utils.WriteValidationErrorResponse(w, "token required", "")
		return
	}

	inv, err := h.db.GetInvitationByToken(req.Token)
	if err != nil {
		utils.WriteNotFoundResponse(w, "Invitation not found")
		return
	}
	if inv.Status != models.InvitationPending || time.Now().After(inv.ExpiresAt) {
		utils.WriteBadRequestResponse(w, "Invitation invalid or expired")
		return
	}

	// 重复接受视为成功（成员已存在）；其他错误不得标记邀请为已接受
	if err := h.db.AddClubMember(&models.ClubMembership{ClubID: inv.ClubID, UserID: user.ID, Role: models.RoleMember}); err != nil && !errors.Is(err, database.ErrDuplicate) {
		utils.WriteInternalServerErrorResponse(w, "Failed to join club")
		return
	}

	inv.Status = models.InvitationAccepted
	inv.AcceptedBy = &user.ID
	if err := h.db.UpdateInvitation(inv); err != nil {
		h.logger.Warn().Err(err).Str("invitation_id", inv.ID).Msg("failed to update invitation")
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{"club_id": inv.ClubID})
}

// PUT /api/clubs/{clubID}/members/role
func (h *ClubsHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	clubID := chiRoute.URLParam(r, "clubID")
	var req struct {
		UserID string          `json:"user_id"`
		Role   models.ClubRole `json:"role"`
	}
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.UserID == "" || !req.Role.Valid() {
		utils.WriteValidationErrorResponse(w, "user_id and a valid role required", "")
		return
	}

	if !requireClubAdmin(w, h.db, clubID, user.ID) {
		return
	}

	// admin 不能降级自己，避免俱乐部失去最后一个管理员
	if req.UserID == user.ID && req.Role != models.RoleAdmin {
		utils.WriteBadRequestResponse(w, "Cannot demote yourself")
		return
	}

	if err := h.db.UpdateClubMemberRole(clubID, req.UserID, req.Role); err != nil {
		if database.IsNotFound(err) {
			utils.WriteNotFoundResponse(w, "Membership not found")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to update role")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"user_id": req.UserID, "role": req.Role})
}
