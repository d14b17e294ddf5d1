package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

const RoleCandidate = "candidate"

var (
	TokenAuth *jwtauth.JWTAuth
	tokenTTL  time.Duration
)

func InitJWT(key []byte, ttl time.Duration) {
	TokenAuth = jwtauth.New("HS256", key, nil)
	tokenTTL = ttl
}

// GenerateCandidateToken issues the interview-scoped credential a candidate session presents
// to the submission, status and live endpoints.
func GenerateCandidateToken(interviewID string) (string, error) {
	claims := jwt.MapClaims{
		"interview_id": interviewID,
		"role":         RoleCandidate,
		"exp":          time.Now().Add(tokenTTL).Unix(),
		"iat":          time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GetInterviewIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["interview_id"].(string)
	if !ok || id == "" {
		return "", errors.New("interview_id claim is missing or not a string")
	}
	return id, nil
}

func GetRoleFromClaims(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
