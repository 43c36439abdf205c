package video

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenService signs short-lived room tokens for the external video
// provider. The provider validates them against the shared app secret;
// no API call is made from here.
type TokenService struct {
	appKey    string
	appSecret []byte
}

func NewTokenService(appKey, appSecret string) *TokenService {
	return &TokenService{appKey: appKey, appSecret: []byte(appSecret)}
}

// Enabled reports whether a provider key pair is configured.
func (s *TokenService) Enabled() bool {
	return s.appKey != "" && len(s.appSecret) > 0
}

// RoomToken issues a token admitting userID to roomID with the given
// provider role ("host" or "guest").
func (s *TokenService) RoomToken(roomID, userID, role string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("video provider is not configured")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"access_key": s.appKey,
		"room_id":    roomID,
		"user_id":    userID,
		"role":       role,
		"type":       "app",
		"version":    2,
		"jti":        uuid.New().String(),
		"iat":        now.Unix(),
		"nbf":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.appSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign room token: %w", err)
	}
	return token, nil
}
