package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/agent"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/broadcast"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cryptoutils"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/shares"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/storage"
)

type fixedSource struct {
	shares map[interfaces.ParticipantID]interfaces.Share
}

func (s *fixedSource) Shares(_ context.Context) (map[interfaces.ParticipantID]interfaces.Share, error) {
	return s.shares, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := testLogger()

	source := &fixedSource{shares: map[interfaces.ParticipantID]interfaces.Share{
		"user-1": "token-1",
		"user-2": "token-2",
		"user-3": "token-3",
	}}
	resolver := shares.NewResolver(source, log)

	bus := broadcast.NewLocalBus()
	t.Cleanup(bus.Close)

	replica, err := agent.New(agent.Config{
		Session: coordinator.Config{Threshold: 2, TotalParticipants: 3},
	}, resolver, bus.Endpoint(), log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go replica.Run(ctx) //nolint:errcheck

	handler := NewHandler(replica, source, storage.NewMemoryBackend(log), log)
	srv, err := NewWithMetrics(&HTTPServerConfig{
		Log:                      log,
		DrainDuration:            10 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, handler, nil, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func testBlinks(n int) []cryptoutils.BlinkEvent {
	blinks := make([]cryptoutils.BlinkEvent, n)
	for i := range blinks {
		blinks[i] = cryptoutils.BlinkEvent{
			Timestamp: float64(i) * 0.5,
			Duration:  0.2,
			Intensity: 0.8,
		}
	}
	return blinks
}

func TestAccessLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/access/request", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap coordinator.Snapshot
	decodeBody(t, resp, &snap)
	assert.Equal(t, "requested", snap.PhaseName)

	resp = postJSON(t, ts, "/api/access/grant", map[string]string{"user_id": "user-2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snap)
	assert.Equal(t, "threshold_met", snap.PhaseName)

	resp = postJSON(t, ts, "/api/access/open", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snap)
	assert.Equal(t, "opened", snap.PhaseName)

	resp = postJSON(t, ts, "/api/access/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &snap)
	assert.Equal(t, "idle", snap.PhaseName)
}

func TestAccessConflictsMapToStatusCodes(t *testing.T) {
	ts := newTestServer(t)

	// Grant without a request
	resp := postJSON(t, ts, "/api/access/grant", map[string]string{"user_id": "user-2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/access/request", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Second request while one is active
	resp = postJSON(t, ts, "/api/access/request", map[string]string{"user_id": "user-2"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Open before threshold
	resp = postJSON(t, ts, "/api/access/open", map[string]string{"user_id": "user-1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Open by a non-requester is a violation
	resp = postJSON(t, ts, "/api/access/open", map[string]string{"user_id": "user-3"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Missing user_id
	resp = postJSON(t, ts, "/api/access/request", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusReportsUnauthorizedAttempts(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/access/open", map[string]string{"user_id": "user-3"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/api/access/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Unauthorized uint64 `json:"unauthorized_attempts"`
	}
	decodeBody(t, resp, &status)
	assert.Equal(t, uint64(1), status.Unauthorized)
}

func TestProcessBlinks(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/api/blinks/process", map[string]interface{}{"blinks": testBlinks(5)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Key        string `json:"key"`
		BlinkCount int    `json:"blink_count"`
	}
	decodeBody(t, resp, &out)
	assert.Equal(t, 5, out.BlinkCount)

	key, err := hex.DecodeString(out.Key)
	require.NoError(t, err)
	assert.Len(t, key, cryptoutils.DerivedKeyLength)

	// No blinks, no key
	resp = postJSON(t, ts, "/api/blinks/process", map[string]interface{}{"blinks": []cryptoutils.BlinkEvent{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSealAndUnsealDocument(t *testing.T) {
	ts := newTestServer(t)
	blinks := testBlinks(5)
	document := base64.StdEncoding.EncodeToString([]byte("the launch codes"))

	resp := postJSON(t, ts, "/api/document/seal", map[string]interface{}{
		"document": document,
		"blinks":   blinks,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sealed struct {
		ContentID string `json:"content_id"`
	}
	decodeBody(t, resp, &sealed)
	require.NotEmpty(t, sealed.ContentID)

	// Unsealing before the session is opened is refused
	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-1",
		"content_id": sealed.ContentID,
		"blinks":     blinks,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// Walk the lifecycle so user-1 may unseal
	for _, step := range []struct{ path, user string }{
		{"/api/access/request", "user-1"},
		{"/api/access/grant", "user-2"},
		{"/api/access/open", "user-1"},
	} {
		resp := postJSON(t, ts, step.path, map[string]string{"user_id": step.user})
		require.Equal(t, http.StatusOK, resp.StatusCode, step.path)
		resp.Body.Close()
	}

	// Only the requester may unseal
	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-2",
		"content_id": sealed.ContentID,
		"blinks":     blinks,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-1",
		"content_id": sealed.ContentID,
		"blinks":     blinks,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unsealed struct {
		Document string `json:"document"`
	}
	decodeBody(t, resp, &unsealed)
	assert.Equal(t, document, unsealed.Document)
}

func TestSealIssuesSharesAndUnsealRecombines(t *testing.T) {
	ts := newTestServer(t)
	document := base64.StdEncoding.EncodeToString([]byte("board minutes"))

	key := make([]byte, cryptoutils.DerivedKeyLength)
	for i := range key {
		key[i] = byte(i)
	}

	resp := postJSON(t, ts, "/api/document/seal", map[string]interface{}{
		"document":  document,
		"key":       hex.EncodeToString(key),
		"n_users":   3,
		"threshold": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sealed struct {
		ContentID string            `json:"content_id"`
		BundleID  string            `json:"bundle_id"`
		Shares    map[string]string `json:"shares"`
	}
	decodeBody(t, resp, &sealed)
	require.NotEmpty(t, sealed.BundleID)
	require.Len(t, sealed.Shares, 3)

	tokens := make([]string, 0, len(sealed.Shares))
	for _, token := range sealed.Shares {
		tokens = append(tokens, token)
	}

	for _, step := range []struct{ path, user string }{
		{"/api/access/request", "user-1"},
		{"/api/access/grant", "user-2"},
		{"/api/access/open", "user-1"},
	} {
		resp := postJSON(t, ts, step.path, map[string]string{"user_id": step.user})
		require.Equal(t, http.StatusOK, resp.StatusCode, step.path)
		resp.Body.Close()
	}

	// One token short of the threshold trips the alarm
	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-1",
		"content_id": sealed.ContentID,
		"shares":     tokens[:1],
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var alarm struct {
		Error     string `json:"error"`
		Collected int    `json:"collected"`
		Required  int    `json:"required"`
	}
	decodeBody(t, resp, &alarm)
	assert.Equal(t, "insufficient_shares", alarm.Error)
	assert.Equal(t, 1, alarm.Collected)
	assert.Equal(t, 2, alarm.Required)

	// Threshold-many tokens recombine into the sealing key
	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-1",
		"content_id": sealed.ContentID,
		"shares":     tokens[:2],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unsealed struct {
		Document string `json:"document"`
	}
	decodeBody(t, resp, &unsealed)
	assert.Equal(t, document, unsealed.Document)
}

func TestUnsealWithWrongKeyFails(t *testing.T) {
	ts := newTestServer(t)
	document := base64.StdEncoding.EncodeToString([]byte("secret"))

	resp := postJSON(t, ts, "/api/document/seal", map[string]interface{}{
		"document": document,
		"blinks":   testBlinks(5),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sealed struct {
		ContentID string `json:"content_id"`
	}
	decodeBody(t, resp, &sealed)

	for _, step := range []struct{ path, user string }{
		{"/api/access/request", "user-1"},
		{"/api/access/grant", "user-2"},
		{"/api/access/open", "user-1"},
	} {
		resp := postJSON(t, ts, step.path, map[string]string{"user_id": step.user})
		require.Equal(t, http.StatusOK, resp.StatusCode, step.path)
		resp.Body.Close()
	}

	resp = postJSON(t, ts, "/api/document/unseal", map[string]interface{}{
		"user_id":    "user-1",
		"content_id": sealed.ContentID,
		"blinks":     testBlinks(7),
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestSharesAreRedacted(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/shares")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Shares map[string]string `json:"shares"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Shares, 3)
	for participant, share := range out.Shares {
		assert.NotEqual(t, fmt.Sprintf("token-%s", participant), share)
		assert.NotContains(t, share, "token-")
	}
}

func TestHealthAndDrainEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/drain")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/undrain")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
