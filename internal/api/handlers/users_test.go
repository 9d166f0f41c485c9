package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/server/internal/domain/users"
)

func issueCode(t *testing.T, srv *testServer, token string) users.ConnectionCode {
	t.Helper()
	rec := srv.do(t, http.MethodPost, "/users/connection-id", token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var code users.ConnectionCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))
	return code
}

func redeemBody(code string) string {
	return fmt.Sprintf(`{"connectionId":%q}`, code)
}

func TestMeReturnsProfileAndFreshToken(t *testing.T) {
	srv := newTestServer(t)
	aliceID, token := registerUser(t, srv, "alice@example.com")

	rec := srv.do(t, http.MethodGet, "/users", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeAuth(t, rec)
	assert.Equal(t, aliceID, body.User.ID)
	assert.Equal(t, "alice@example.com", body.User.Email)
	require.NotEmpty(t, body.Token)

	// The reissued token must itself be usable.
	rec = srv.do(t, http.MethodGet, "/users", body.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectionCodeIssue(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerUser(t, srv, "alice@example.com")

	code := issueCode(t, srv, token)
	assert.NotEmpty(t, code.Code)
	assert.True(t, code.ExpiresAt.After(time.Now()))

	// GET works as an alias for clients that fetch the code on page load.
	rec := srv.do(t, http.MethodGet, "/users/connection-id", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reissuing replaces the code; the old one no longer redeems.
	fresh := issueCode(t, srv, token)
	assert.NotEqual(t, code.Code, fresh.Code)

	_, bobToken := registerUser(t, srv, "bob@example.com")
	rec = srv.do(t, http.MethodPost, "/users/connections", bobToken,
		redeemBody(code.Code))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectFlow(t *testing.T) {
	srv := newTestServer(t)
	aliceID, aliceToken := registerUser(t, srv, "alice@example.com")
	bobID, bobToken := registerUser(t, srv, "bob@example.com")

	code := issueCode(t, srv, aliceToken)

	rec := srv.do(t, http.MethodPost, "/users/connections", bobToken,
		redeemBody(code.Code))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Peer users.PeerSummary `json:"peer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, aliceID, body.Peer.ID)

	// Both sides now list each other.
	var list struct {
		Connections []users.Connection `json:"connections"`
	}
	rec = srv.do(t, http.MethodGet, "/users/connections", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Connections, 1)
	assert.Equal(t, bobID, list.Connections[0].PeerID)

	list.Connections = nil
	rec = srv.do(t, http.MethodGet, "/users/connections", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Connections, 1)
	assert.Equal(t, aliceID, list.Connections[0].PeerID)

	// The code is consumed on redemption.
	_, carolToken := registerUser(t, srv, "carol@example.com")
	rec = srv.do(t, http.MethodPost, "/users/connections", carolToken,
		redeemBody(code.Code))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectOwnCodeRejected(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerUser(t, srv, "alice@example.com")
	code := issueCode(t, srv, token)

	rec := srv.do(t, http.MethodPost, "/users/connections", token,
		redeemBody(code.Code))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The failed redemption must not burn the code. This redeem also uses
	// the legacy code field instead of connectionId.
	_, bobToken := registerUser(t, srv, "bob@example.com")
	rec = srv.do(t, http.MethodPost, "/users/connections", bobToken,
		fmt.Sprintf(`{"code":%q}`, code.Code))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestConnectRequiresCode(t *testing.T) {
	srv := newTestServer(t)
	_, token := registerUser(t, srv, "alice@example.com")

	rec := srv.do(t, http.MethodPost, "/users/connections", token, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDisconnect(t *testing.T) {
	srv := newTestServer(t)
	aliceID, aliceToken := registerUser(t, srv, "alice@example.com")
	bobID, bobToken := registerUser(t, srv, "bob@example.com")
	connectUsers(t, srv, aliceID, bobID)

	rec := srv.do(t, http.MethodDelete, "/users/connections/"+bobID.String(), aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Removal is mutual.
	var list struct {
		Connections []users.Connection `json:"connections"`
	}
	rec = srv.do(t, http.MethodGet, "/users/connections", bobToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Connections)

	// Disconnecting again reports not found.
	rec = srv.do(t, http.MethodDelete, "/users/connections/"+bobID.String(), aliceToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreferencesHideEvents(t *testing.T) {
	srv := newTestServer(t)
	aliceID, aliceToken := registerUser(t, srv, "alice@example.com")
	bobID, _ := registerUser(t, srv, "bob@example.com")
	connectUsers(t, srv, aliceID, bobID)

	rec := srv.do(t, http.MethodPatch, "/users/connections/"+bobID.String()+"/preferences",
		aliceToken, `{"hideEvents":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var list struct {
		Connections []users.Connection `json:"connections"`
	}
	rec = srv.do(t, http.MethodGet, "/users/connections", aliceToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Connections, 1)
	assert.True(t, list.Connections[0].HideEvents)

	// The flag is required; an empty patch is rejected.
	rec = srv.do(t, http.MethodPatch, "/users/connections/"+bobID.String()+"/preferences",
		aliceToken, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown peer reports not connected.
	rec = srv.do(t, http.MethodPatch, "/users/connections/"+aliceID.String()+"/preferences",
		aliceToken, `{"hideEvents":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
