package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issueToken mints a signed HS256 bearer token for an authenticated user.
func issueToken(secret string, ttl time.Duration, userID, email string) (string, error) {
	if secret == "" {
		return "", errors.New("JWT_SECRET not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"userId": userID,
		"email":  email,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken validates a bearer token and returns the user identity claims.
func parseToken(secret, tokenString string) (userID, email string, err error) {
	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", "", errors.New("invalid token claims")
	}
	userID, _ = claims["userId"].(string)
	email, _ = claims["email"].(string)
	if userID == "" {
		return "", "", errors.New("token missing userId claim")
	}
	return userID, email, nil
}
