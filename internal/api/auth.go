package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"escaperoom/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer token claims. Subject carries the numeric user id.
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

func (s *HTTPServer) parseToken(header string) (service.Requester, error) {
	tokenStr := strings.TrimSpace(header)
	if len(tokenStr) < 7 || !strings.EqualFold(tokenStr[:7], "bearer ") {
		return service.Requester{}, errors.New("missing bearer token")
	}
	tokenStr = strings.TrimSpace(tokenStr[7:])
	if tokenStr == "" {
		return service.Requester{}, errors.New("missing bearer token")
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return service.Requester{}, err
	}
	if !tok.Valid {
		return service.Requester{}, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return service.Requester{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return service.Requester{UserID: userID, IsAdmin: claims.Admin}, nil
}

// authenticate resolves the bearer token into a service.Requester stored in
// the request context.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := s.parseToken(r.Header.Get("Authorization"))
		if err != nil {
			s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected token")
			writeError(w, http.StatusUnauthorized, "unauthenticated", "valid bearer token required")
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithRequester(r.Context(), req)))
	})
}

func requester(r *http.Request) service.Requester {
	req, _ := service.RequesterFrom(r.Context())
	return req
}
