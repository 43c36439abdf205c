package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ebe-backend/pkg/cache"
	"ebe-backend/pkg/config"
	"ebe-backend/pkg/database"
	"ebe-backend/pkg/mailer"
	"ebe-backend/pkg/middleware"
	"ebe-backend/pkg/models"
	"ebe-backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

const otpTTL = 10 * time.Minute

type AuthHandler struct {
	config *config.Config
	db     database.Store
	cache  cache.Cache
	mail   mailer.Mailer
	jwt    *utils.JWTService
}

func NewAuthHandler(cfg *config.Config, db database.Store, c cache.Cache, mail mailer.Mailer) *AuthHandler {
	return &AuthHandler{
		config: cfg,
		db:     db,
		cache:  c,
		mail:   mail,
		jwt:    utils.NewJWTService(cfg.JWTSecret),
	}
}

func otpKey(email string) string { return "otp:" + email }

// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" {
		utils.WriteValidationErrorResponse(w, "email and username required", "")
		return
	}
	if len(req.Password) < 8 {
		utils.WriteValidationErrorResponse(w, "password must be at least 8 characters", "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to process password")
		return
	}

	user := &models.User{
		Email:    req.Email,
		Password: string(hash),
		Username: req.Username,
		Name:     req.Name,
	}
	if err := h.db.CreateUser(user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			utils.WriteConflictResponse(w, "Email or username already taken")
			return
		}
		utils.WriteInternalServerErrorResponse(w, "Failed to create user")
		return
	}

	// 发送邮箱验证码（投递失败不阻断注册，用户可重新请求）
	code, err := utils.GenerateOTPCode(6)
	if err == nil {
		if err := h.cache.Set(r.Context(), otpKey(user.Email), code, otpTTL); err == nil {
			_ = h.mail.Send(user.Email, "Verify your ebe account",
				fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code))
		}
	}

	utils.WriteCreatedResponse(w, map[string]interface{}{
		"user":    user,
		"message": "Verification code sent to your email",
	})
}

// POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyOTPRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Code == "" {
		utils.WriteValidationErrorResponse(w, "email and code required", "")
		return
	}

	stored, err := h.cache.Get(r.Context(), otpKey(req.Email))
	if err != nil || stored != req.Code {
		utils.WriteBadRequestResponse(w, "Invalid or expired verification code")
		return
	}

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	user.IsVerified = true
	if err := h.db.UpdateUser(user); err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to verify user")
		return
	}
	_, _ = h.cache.Del(r.Context(), otpKey(req.Email))

	utils.WriteSuccessResponse(w, map[string]interface{}{"verified": true})
}

// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.db.GetUserByEmail(req.Email)
	if err != nil {
		// 不区分“用户不存在”与“密码错误”
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid email or password")
		return
	}

	access, refresh, expiresIn, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		utils.WriteInternalServerErrorResponse(w, "Failed to generate tokens")
		return
	}

	utils.WriteSuccessResponse(w, models.LoginResponse{
		User:         *user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	})
}

// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshTokenRequest
	if err := utils.ParseJSONBody(r, &req); err != nil {
		utils.WriteBadRequestResponse(w, "Invalid body")
		return
	}
	if req.RefreshToken == "" {
		utils.WriteValidationErrorResponse(w, "refresh_token required", "")
		return
	}

	access, expiresIn, err := h.jwt.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Invalid refresh token")
		return
	}

	utils.WriteSuccessResponse(w, map[string]interface{}{
		"access_token": access,
		"expires_in":   expiresIn,
	})
}

// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	full, err := h.db.GetUserByID(user.ID)
	if err != nil {
		utils.WriteNotFoundResponse(w, "User not found")
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"user": full})
}

// GET /
func (h *AuthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.db.HealthCheck(); err != nil {
		status = "degraded"
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"status":      status,
		"environment": h.config.Environment,
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}
