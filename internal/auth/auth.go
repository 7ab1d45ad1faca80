// Package auth provides middleware and helpers for JWT-based authentication
// in HTTP requests, plus password hashing. Tokens are carried in an HTTP-only
// cookie or in the Authorization header.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/m-lukins/compforge/internal/logger"
	"github.com/m-lukins/compforge/internal/models"
	"github.com/m-lukins/compforge/internal/user"
)

type userKeeper interface {
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, bool, error)
}

// Auth verifies session tokens on incoming requests and manages the
// session cookie. Every verification failure is reported to the client
// as a uniform unauthenticated outcome.
type Auth struct {
	// db is the interface to the user data storage.
	db userKeeper

	// authCookieName is the name of the cookie used to store the JWT.
	authCookieName string

	// authCookieSigningSecretKey is the key used to sign JWTs.
	authCookieSigningSecretKey []byte

	// tokenTTL bounds the lifetime of issued tokens.
	tokenTTL time.Duration
}

// Claims represents the JWT claims used by the system.
// Only the user identifier is carried beyond the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// New creates a new Auth handler with the given user data access layer,
// cookie name, JWT signing secret and token lifetime.
func New(
	db userKeeper,
	authCookieName string,
	authCookieSigningSecretKey []byte,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		db:                         db,
		authCookieName:             authCookieName,
		authCookieSigningSecretKey: authCookieSigningSecretKey,
		tokenTTL:                   tokenTTL,
	}
}

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the stored
// bcrypt hash. The comparison is constant-time.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserIDFromContext extracts the authenticated user id placed into the
// request context by AuthenticateUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// BuildJWTString issues a signed, time-bounded token for the given user.
func (a *Auth) BuildJWTString(userID string) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, *claims)

	tokenString, err := token.SignedString(a.authCookieSigningSecretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetUserIDFromToken parses and verifies a token string and returns the
// user id claim. Malformed, expired and badly signed tokens all map to
// models.ErrUnauthorized without further distinction.
func (a *Auth) GetUserIDFromToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.authCookieSigningSecretKey, nil
		},
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", models.ErrUnauthorized
	}

	return claims.UserID, nil
}

// SetSessionCookie attaches a freshly issued session token to the response.
func (a *Auth) SetSessionCookie(response http.ResponseWriter, tokenString string) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:     a.authCookieName,
			Value:    tokenString,
			Path:     "/",
			HttpOnly: true,
			MaxAge:   int(a.tokenTTL.Seconds()),
		},
	)
}

// ClearSessionCookie expires the session cookie on the client.
// No server-side token state exists, so this is the whole of signout.
func (a *Auth) ClearSessionCookie(response http.ResponseWriter) {
	http.SetCookie(
		response,
		&http.Cookie{
			Name:     a.authCookieName,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		},
	)
}

func (a *Auth) getTokenStringFromAuthorizationHeaderOrCookie(request *http.Request) string {
	tokenString := request.Header.Get("Authorization")
	if tokenString != "" {
		return tokenString
	}
	cookie, err := request.Cookie(a.authCookieName)
	if err == nil {
		tokenString = cookie.Value
	}

	return tokenString
}

func writeUnauthenticated(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(response).Encode(models.MessageResponse{Message: models.ErrUnauthorized.Error()})
}

// AuthenticateUser is an HTTP middleware that authenticates incoming requests
// using JWTs found in the Authorization header or cookies. The resolved user
// id is stored in the request context; requests without a valid session get
// a uniform 401 response.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		tokenString := a.getTokenStringFromAuthorizationHeaderOrCookie(request)
		if tokenString == "" {
			writeUnauthenticated(response)
			return
		}

		userID, err := a.GetUserIDFromToken(tokenString)
		if err != nil {
			writeUnauthenticated(response)
			return
		}

		usr, found, err := a.db.GetUserByID(request.Context(), userID, nil)
		if err != nil {
			logger.Log.Debugln("Error calling the `a.db.GetUserByID()`: ", err)
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !found {
			writeUnauthenticated(response)
			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, usr.ID)
		requestWithCtx := request.WithContext(ctx)

		h.ServeHTTP(response, requestWithCtx)
	}

	return http.HandlerFunc(middleware)
}
