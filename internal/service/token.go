package service

import (
	"crypto/rand"
	"fmt"
	"log"
	"strconv"
	"time"

	"playerwallet/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "player-wallet"

// Claims 会话令牌载荷
type Claims struct {
	PlayerID int64  `json:"player_id"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer HS256 签发和校验
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer secret 为空时生成随机密钥，重启后旧令牌全部失效
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("generate jwt secret: %v", err))
		}
		log.Println("[Auth] auth.jwt_secret not set, using a random per-process secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: key, ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(player *model.Player) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)

	claims := Claims{
		PlayerID: player.ID,
		Email:    player.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(player.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.PlayerID <= 0 {
		return nil, fmt.Errorf("%w: missing player id", ErrUnauthorized)
	}
	return claims, nil
}
