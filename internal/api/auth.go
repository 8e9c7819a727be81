package api

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleOauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/intermernet/clubportal/internal/auth"
	"github.com/intermernet/clubportal/internal/config"
	"github.com/intermernet/clubportal/internal/database"
)

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// --- OAUTH LOGIC ---

func newGoogleOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleOauthClientID,
		ClientSecret: cfg.GoogleOauthClientSecret,
		RedirectURL:  cfg.GoogleOauthRedirectURL,
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
		Endpoint:     google.Endpoint,
	}
}

// generateStateOauthCookie sets a random CSRF state as an HttpOnly cookie
// and returns it.
func generateStateOauthCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := hex.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

// handleGoogleLogin redirects to Google's consent page.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		s.errorJSON(w, errors.New("google sign-in is not enabled"), http.StatusNotFound)
		return
	}
	state, err := generateStateOauthCookie(w)
	if err != nil {
		s.errorJSON(w, err)
		return
	}
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// handleGoogleCallback signs in the roster member whose email matches the
// Google account. Google sign-in never creates members.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.oauth == nil {
		s.errorJSON(w, errors.New("google sign-in is not enabled"), http.StatusNotFound)
		return
	}

	oauthState, err := r.Cookie("oauthstate")
	if err != nil || r.FormValue("state") != oauthState.Value {
		s.errorJSON(w, errors.New("invalid oauth state"), http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	token, err := s.oauth.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to exchange code for token: %w", err), http.StatusUnauthorized)
		return
	}

	oauth2Service, err := googleOauth2.NewService(ctx, option.WithTokenSource(s.oauth.TokenSource(ctx, token)))
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to create oauth service: %w", err))
		return
	}
	userInfo, err := oauth2Service.Userinfo.Get().Do()
	if err != nil {
		s.errorJSON(w, fmt.Errorf("failed to get user info: %w", err))
		return
	}
	if userInfo.VerifiedEmail != nil && !*userInfo.VerifiedEmail {
		s.errorJSON(w, errors.New("google account email is not verified"), http.StatusForbidden)
		return
	}

	member, err := s.db.GetMemberByEmail(ctx, s.db.DB(), userInfo.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorJSON(w, errors.New("no club member is registered with this email"), http.StatusForbidden)
			return
		}
		s.errorJSON(w, err)
		return
	}
	if member.Status == database.StatusLeft {
		s.errorJSON(w, errors.New("membership has ended"), http.StatusForbidden)
		return
	}

	appToken, err := auth.GenerateJWT(member.ID, member.Role, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, fmt.Errorf("could not generate token: %w", err))
		return
	}

	redirectURL := fmt.Sprintf("%s/auth/callback?token=%s", s.config.FrontendURL, url.QueryEscape(appToken))
	http.Redirect(w, r, redirectURL, http.StatusTemporaryRedirect)
}

// --- PASSWORD-BASED AUTH ---

// handleLogin authenticates a member by email and password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	payload.Email = strings.TrimSpace(payload.Email)
	if payload.Email == "" || payload.Password == "" {
		s.errorJSON(w, errors.New("email and password are required"), http.StatusBadRequest)
		return
	}

	invalid := errors.New("invalid email or password")
	member, err := s.db.GetMemberByEmail(r.Context(), s.db.DB(), payload.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.errorJSON(w, invalid, http.StatusUnauthorized)
			return
		}
		s.errorJSON(w, err)
		return
	}

	// Members who only ever used Google have no password.
	if !member.PasswordHash.Valid || member.PasswordHash.String == "" {
		s.errorJSON(w, errors.New("no password set, please sign in with Google or ask the board for an invite"), http.StatusUnauthorized)
		return
	}
	if !auth.CheckPasswordHash(payload.Password, member.PasswordHash.String) {
		s.errorJSON(w, invalid, http.StatusUnauthorized)
		return
	}
	if member.Status == database.StatusLeft {
		s.errorJSON(w, errors.New("membership has ended"), http.StatusForbidden)
		return
	}

	tokenString, err := auth.GenerateJWT(member.ID, member.Role, s.config.JwtSecret)
	if err != nil {
		s.errorJSON(w, fmt.Errorf("could not generate token: %w", err))
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		"token":  tokenString,
		"member": toMemberResponse(member, true),
	})
}

// handleChangePassword sets the caller's password. A member without a
// password yet may set one without the current password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, err := principalFromContext(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusUnauthorized)
		return
	}

	var payload changePasswordPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	member, err := s.db.GetMemberByID(r.Context(), s.db.DB(), p.MemberID)
	if err != nil {
		s.storeError(w, err, "member not found")
		return
	}
	if member.PasswordHash.Valid && member.PasswordHash.String != "" &&
		!auth.CheckPasswordHash(payload.CurrentPassword, member.PasswordHash.String) {
		s.errorJSON(w, errors.New("current password is wrong"), http.StatusUnauthorized)
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			s.errorJSON(w, err, http.StatusBadRequest)
			return
		}
		s.errorJSON(w, err)
		return
	}

	err = s.db.Write(r.Context(), func(tx *sql.Tx) error {
		return s.db.SetMemberPassword(r.Context(), tx, member.ID, hash)
	})
	if err != nil {
		s.storeError(w, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
