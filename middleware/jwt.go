package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SeatClaims is the JWT payload of a seat token: the bearer plays Seat
// ("p1" or "p2") of match MatchID.
type SeatClaims struct {
	MatchID string `json:"match_id"`
	Seat    string `json:"seat"`
	jwt.RegisteredClaims
}

// GenerateSeatToken signs a seat token with the given secret and TTL.
func GenerateSeatToken(matchID, seat, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SeatClaims{
		MatchID: matchID,
		Seat:    seat,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseSeatToken validates a JWT string and returns the claims.
func ParseSeatToken(tokenStr, secret string) (*SeatClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SeatClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SeatClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.MatchID == "" || claims.Seat == "" {
		return nil, errors.New("token has no seat")
	}
	return claims, nil
}
