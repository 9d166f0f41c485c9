package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gatherly/server/internal/api/middleware"
	"github.com/gatherly/server/internal/api/respond"
	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/domain/users"
	"github.com/gatherly/server/internal/metrics"
)

type UsersHandler struct {
	users        *users.Service
	accessTokens *auth.JWTManager
	logger       zerolog.Logger
}

func NewUsersHandler(userService *users.Service, accessTokens *auth.JWTManager, logger zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		users:        userService,
		accessTokens: accessTokens,
		logger:       logger.With().Str("component", "users_handler").Logger(),
	}
}

// Me returns the caller's profile together with a fresh access token, so a
// returning client can extend its session on load.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetProfile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	token, err := h.accessTokens.Generate(user.ID.String(), user.Role)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, authResponse{Token: token, User: profileOf(user)})
}

// ConnectionID issues (or reissues) the caller's connection code.
func (h *UsersHandler) ConnectionID(w http.ResponseWriter, r *http.Request) {
	code, err := h.users.IssueConnectionCode(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	metrics.ConnectionCodesIssued.Inc()

	respond.JSON(w, http.StatusOK, code)
}

// Connect redeems a peer's connection code, forming a mutual connection.
// The wire field is connectionId; code is accepted as a legacy alias.
func (h *UsersHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ConnectionID string `json:"connectionId"`
		Code         string `json:"code"`
	}
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	code := input.ConnectionID
	if code == "" {
		code = input.Code
	}
	if code == "" {
		respond.BadRequest(w, "connectionId is required")
		return
	}

	peer, err := h.users.RedeemConnectionCode(r.Context(), middleware.UserID(r.Context()), code)
	if err != nil {
		metrics.ConnectionCodesRedeemed.WithLabelValues("failure").Inc()
		respond.Error(w, r, err)
		return
	}
	metrics.ConnectionCodesRedeemed.WithLabelValues("success").Inc()

	respond.JSON(w, http.StatusOK, struct {
		Peer *users.PeerSummary `json:"peer"`
	}{Peer: peer})
}

func (h *UsersHandler) Connections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.users.ListConnections(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		Connections []users.Connection `json:"connections"`
	}{Connections: connections})
}

// Disconnect removes the connection in both directions.
func (h *UsersHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	peerID, ok := pathID(w, r, "peerId")
	if !ok {
		return
	}
	if err := h.users.RemoveConnection(r.Context(), middleware.UserID(r.Context()), peerID); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, http.StatusOK, "connection removed")
}

// Preferences updates the caller's own side of a connection. Only the
// hideEvents flag exists today.
func (h *UsersHandler) Preferences(w http.ResponseWriter, r *http.Request) {
	peerID, ok := pathID(w, r, "peerId")
	if !ok {
		return
	}
	var input struct {
		HideEvents *bool `json:"hideEvents"`
	}
	if err := respond.Decode(r, &input); err != nil {
		respond.BadRequest(w, "invalid request body")
		return
	}
	if input.HideEvents == nil {
		respond.BadRequest(w, "hideEvents is required")
		return
	}

	err := h.users.SetHideEvents(r.Context(), middleware.UserID(r.Context()), peerID, *input.HideEvents)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, struct {
		HideEvents bool `json:"hideEvents"`
	}{HideEvents: *input.HideEvents})
}
