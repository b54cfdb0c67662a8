package handlers

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"server/internal/domain"
	"server/internal/middleware"
)

const (
	sessionTTL = 7 * 24 * time.Hour
	// initialCoins is the free-plan grant for a fresh account.
	initialCoins = 5.0
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account with the free-plan coin grant and signs
// the caller in immediately.
func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}
	if len(creds.Password) < 8 {
		a.error(w, http.StatusBadRequest, "validation_error", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		a.fail(w, err)
		return
	}
	// The id is minted here, not by the database, so the session issued
	// below is always bound to the row just inserted.
	user := &domain.User{ID: uuid.NewString(), Email: creds.Email, PasswordHash: string(hash)}
	if err := a.Users.Create(r.Context(), user, initialCoins); err != nil {
		a.fail(w, err)
		return
	}
	a.session(w, user, initialCoins)
}

// Login verifies credentials and issues a session token plus the CSRF
// token that must accompany mutating requests.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := a.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, err := a.Users.GetByEmail(r.Context(), creds.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	balance, err := a.Users.Balance(r.Context(), user.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.session(w, user, balance)
}

func (a *App) decodeCredentials(w http.ResponseWriter, r *http.Request) (*credentials, bool) {
	var creds credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&creds); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return nil, false
	}
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))
	if _, err := mail.ParseAddress(creds.Email); err != nil {
		a.error(w, http.StatusBadRequest, "validation_error", "invalid email address")
		return nil, false
	}
	return &creds, true
}

func (a *App) session(w http.ResponseWriter, user *domain.User, balance float64) {
	token, err := middleware.SignSession(a.Config.SessionSecret, middleware.SessionClaims{
		Sub:     user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		Exp:     time.Now().Add(sessionTTL).Unix(),
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":    true,
		"token":      token,
		"csrf_token": middleware.CSRFToken(a.Config.SessionSecret, user.ID),
		"user": map[string]any{
			"id":              user.ID,
			"email":           user.Email,
			"coins_remaining": balance,
		},
	})
}
