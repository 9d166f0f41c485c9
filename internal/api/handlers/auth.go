package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/api/respond"
	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/auth/oauth"
	"github.com/gatherly/server/internal/config"
	"github.com/gatherly/server/internal/domain/users"
	"github.com/gatherly/server/internal/metrics"
)

const (
	refreshCookieName = "gatherly_refresh"
	oauthStateCookie  = "gatherly_oauth_state"
)

type AuthHandler struct {
	users         *users.Service
	accessTokens  *auth.JWTManager
	refreshTokens *auth.JWTManager
	google        *oauth.GoogleClient
	cfg           config.Config
	logger        zerolog.Logger
}

func NewAuthHandler(
	userService *users.Service,
	accessTokens, refreshTokens *auth.JWTManager,
	google *oauth.GoogleClient,
	cfg config.Config,
	logger zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:         userService,
		accessTokens:  accessTokens,
		refreshTokens: refreshTokens,
		google:        google,
		cfg:           cfg,
		logger:        logger.With().Str("component", "auth_handler").Logger(),
	}
}

type authResponse struct {
	Token string      `json:"token"`
	User  userProfile `json:"user"`
}

type userProfile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	Provider string    `json:"provider"`
}

func profileOf(user *users.User) userProfile {
	return userProfile{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		Provider: user.Provider,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.UsersRegistered.WithLabelValues(users.ProviderLocal).Inc()

	h.issueSession(w, r, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}

	user, err := h.users.Authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

// Refresh exchanges a valid refresh cookie for a fresh access token. The
// refresh cookie is rotated as well.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		respond.Error(w, r, auth.ErrMissingToken)
		return
	}
	claims, err := h.refreshTokens.Validate(cookie.Value)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		respond.Error(w, r, auth.ErrInvalidToken)
		return
	}

	user, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			respond.Error(w, r, auth.ErrInvalidToken)
			return
		}
		respond.Error(w, r, err)
		return
	}

	h.issueSession(w, r, user, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteStrictMode,
	})
	respond.Message(w, http.StatusOK, "logged out")
}

// GoogleLogin redirects the browser to Google's consent screen. The state
// nonce is pinned in a short-lived cookie and checked on callback.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		respond.Message(w, http.StatusNotImplemented, "google sign-in is not configured")
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.GenerateAuthURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		respond.Message(w, http.StatusNotImplemented, "google sign-in is not configured")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		respond.BadRequest(w, "oauth state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		respond.BadRequest(w, "missing authorization code")
		return
	}

	token, err := h.google.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Warn().Err(err).Msg("google code exchange failed")
		respond.Message(w, http.StatusBadGateway, "google sign-in failed")
		return
	}
	profile, err := h.google.FetchUserProfile(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("google profile fetch failed")
		respond.Message(w, http.StatusBadGateway, "google sign-in failed")
		return
	}

	user, err := h.users.UpsertGoogleUser(r.Context(), profile)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.UsersRegistered.WithLabelValues(users.ProviderGoogle).Inc()

	refresh, err := h.refreshTokens.Generate(user.ID.String(), user.Role)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.setRefreshCookie(w, refresh)

	// Back to the web client, which picks the session up via /auth/refresh.
	redirect := h.cfg.Server.BaseURL
	if origin := h.cfg.CORSOrigin; origin != "" && origin != "*" {
		redirect = origin
	}
	if _, err := url.Parse(redirect); err != nil {
		redirect = "/"
	}
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, user *users.User, status int) {
	access, err := h.accessTokens.Generate(user.ID.String(), user.Role)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	refresh, err := h.refreshTokens.Generate(user.ID.String(), user.Role)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	h.setRefreshCookie(w, refresh)

	respond.JSON(w, status, authResponse{Token: access, User: profileOf(user)})
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		MaxAge:   int(h.cfg.Auth.RefreshExpiry.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) secureCookies() bool {
	return h.cfg.Environment == "production"
}
