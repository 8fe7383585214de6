package service

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenService 签发恢复令牌：把 participantId 和房间码绑在一起，
// 断线重连时凭它恢复身份，防止 resume 帧冒用他人的 participantId。
// 这不是用户认证，只是会话协议的防伪粘合剂。
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService 创建 TokenService 实例。
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if secret == "" {
		panic("token secret cannot be empty for TokenService")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

type resumeClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// Issue 为参与者签发绑定到房间的恢复令牌。
func (s *TokenService) Issue(code string, participantID string) (string, error) {
	now := time.Now().UTC()
	claims := resumeClaims{
		Room: code,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify 校验恢复令牌并返回其中的 participantId。
// 签名无效、过期或房间不匹配都返回 ErrInvalidResumeToken。
func (s *TokenService) Verify(token string, code string) (string, error) {
	var claims resumeClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidResumeToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidResumeToken
	}
	if claims.Room != code || claims.Subject == "" {
		return "", ErrInvalidResumeToken
	}
	return claims.Subject, nil
}
