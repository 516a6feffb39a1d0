// Package auth issues and verifies the signed tokens that admit a peer to a
// collaboration room.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"moodpad/internal/rbac"
	"moodpad/internal/util"
)

// RoomClaims grant Sub the Role inside Room until Exp.
type RoomClaims struct {
	Sub  string `json:"sub"`
	Room string `json:"room"`
	Role string `json:"role"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrWrongRoom    = errors.New("token is for another room")
)

// Issuer signs room tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token for peer in room. Unknown roles become viewer.
func (i *Issuer) Issue(room, peer string, role rbac.Role) (string, RoomClaims, error) {
	claims := RoomClaims{
		Sub:  peer,
		Room: room,
		Role: string(rbac.Normalize(string(role))),
		JTI:  util.NewID("rt"),
		Exp:  i.now().Add(i.ttl).Unix(),
	}
	token, err := IssueToken(i.secret, claims)
	return token, claims, err
}

// Verify checks the signature and expiry and that the token names room.
func (i *Issuer) Verify(room, token string) (RoomClaims, error) {
	claims, err := parseToken(i.secret, token, i.now())
	if err != nil {
		return RoomClaims{}, err
	}
	if claims.Room != room {
		return RoomClaims{}, ErrWrongRoom
	}
	return claims, nil
}

func IssueToken(secret []byte, claims RoomClaims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

func ParseToken(secret []byte, token string) (RoomClaims, error) {
	return parseToken(secret, token, time.Now())
}

func parseToken(secret []byte, token string, now time.Time) (RoomClaims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return RoomClaims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return RoomClaims{}, ErrInvalidToken
	}
	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return RoomClaims{}, ErrInvalidToken
	}
	var claims RoomClaims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return RoomClaims{}, ErrInvalidToken
	}
	if claims.Sub == "" || claims.Room == "" || claims.JTI == "" || claims.Exp == 0 {
		return RoomClaims{}, ErrInvalidToken
	}
	if now.Unix() >= claims.Exp {
		return RoomClaims{}, ErrExpiredToken
	}
	return claims, nil
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
