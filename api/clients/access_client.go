package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/coordinator"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cryptoutils"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
)

// AccessClient provides methods for interacting with the coordinator's
// access API. It handles request encoding, response parsing and error
// surfacing.
type AccessClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAccessClient creates a client for the coordinator API.
//
// Parameters:
//   - baseURL: The base URL of the coordinator (e.g., "http://localhost:8080")
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewAccessClient(baseURL string, timeout ...time.Duration) *AccessClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &AccessClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Status returns the coordinator's session snapshot and its unauthorized
// attempt counter.
func (c *AccessClient) Status(ctx context.Context) (coordinator.Snapshot, uint64, error) {
	var result struct {
		Session      coordinator.Snapshot `json:"session"`
		Unauthorized uint64               `json:"unauthorized_attempts"`
	}
	if err := c.get(ctx, "/api/access/status", &result); err != nil {
		return coordinator.Snapshot{}, 0, err
	}
	return result.Session, result.Unauthorized, nil
}

// RequestAccess opens a new access request for the participant.
func (c *AccessClient) RequestAccess(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return c.postAction(ctx, "/api/access/request", participant)
}

// GrantAccess records the participant's grant for the active request.
func (c *AccessClient) GrantAccess(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return c.postAction(ctx, "/api/access/grant", participant)
}

// OpenDocument attempts to open the document as the participant.
func (c *AccessClient) OpenDocument(ctx context.Context, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	return c.postAction(ctx, "/api/access/open", participant)
}

// Reset forces the session back to idle.
func (c *AccessClient) Reset(ctx context.Context) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	if err := c.post(ctx, "/api/access/reset", map[string]string{}, &snap); err != nil {
		return coordinator.Snapshot{}, err
	}
	return snap, nil
}

// ProcessBlinks derives a document key from a blink pattern. The key is
// returned hex-encoded the way the seal and unseal endpoints expect it.
func (c *AccessClient) ProcessBlinks(ctx context.Context, blinks []cryptoutils.BlinkEvent) (string, error) {
	var result struct {
		Key string `json:"key"`
	}
	err := c.post(ctx, "/api/blinks/process", map[string]interface{}{"blinks": blinks}, &result)
	if err != nil {
		return "", err
	}
	return result.Key, nil
}

// SealDocument encrypts and stores a document under the hex-encoded key.
// Returns the content ID of the sealed blob.
func (c *AccessClient) SealDocument(ctx context.Context, document []byte, keyHex string) (string, error) {
	var result struct {
		ContentID string `json:"content_id"`
	}
	err := c.post(ctx, "/api/document/seal", map[string]string{
		"document": base64.StdEncoding.EncodeToString(document),
		"key":      keyHex,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.ContentID, nil
}

// SealResult is the seal endpoint's response when share issuance is
// requested alongside the sealed blob.
type SealResult struct {
	ContentID string            `json:"content_id"`
	BundleID  string            `json:"bundle_id"`
	Shares    map[string]string `json:"shares"`
}

// SealDocumentWithShares encrypts and stores a document and splits the key
// into a fresh bundle of nUsers share tokens, threshold-many of which
// recombine into the key.
func (c *AccessClient) SealDocumentWithShares(ctx context.Context, document []byte, keyHex string, nUsers, threshold int) (SealResult, error) {
	var result SealResult
	err := c.post(ctx, "/api/document/seal", map[string]interface{}{
		"document":  base64.StdEncoding.EncodeToString(document),
		"key":       keyHex,
		"n_users":   nUsers,
		"threshold": threshold,
	}, &result)
	if err != nil {
		return SealResult{}, err
	}
	return result, nil
}

// UnsealDocument fetches and decrypts a sealed document as the participant.
// The coordinator refuses unless the session is opened by that participant.
func (c *AccessClient) UnsealDocument(ctx context.Context, participant interfaces.ParticipantID, contentID, keyHex string) ([]byte, error) {
	var result struct {
		Document string `json:"document"`
	}
	err := c.post(ctx, "/api/document/unseal", map[string]string{
		"user_id":    participant.String(),
		"content_id": contentID,
		"key":        keyHex,
	}, &result)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(result.Document)
}

// UnsealDocumentWithShares decrypts a sealed document by recombining the
// posted share tokens. Fewer than threshold-many tokens are rejected with
// the coordinator's insufficient-shares alarm.
func (c *AccessClient) UnsealDocumentWithShares(ctx context.Context, participant interfaces.ParticipantID, contentID string, tokens []interfaces.Share) ([]byte, error) {
	var result struct {
		Document string `json:"document"`
	}
	err := c.post(ctx, "/api/document/unseal", map[string]interface{}{
		"user_id":    participant.String(),
		"content_id": contentID,
		"shares":     tokens,
	}, &result)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(result.Document)
}

// Shares lists the participants holding issued shares, tokens redacted.
func (c *AccessClient) Shares(ctx context.Context) (map[string]string, error) {
	var result struct {
		Shares map[string]string `json:"shares"`
	}
	if err := c.get(ctx, "/api/shares", &result); err != nil {
		return nil, err
	}
	return result.Shares, nil
}

func (c *AccessClient) postAction(ctx context.Context, path string, participant interfaces.ParticipantID) (coordinator.Snapshot, error) {
	var snap coordinator.Snapshot
	err := c.post(ctx, path, map[string]string{"user_id": participant.String()}, &snap)
	if err != nil {
		return coordinator.Snapshot{}, err
	}
	return snap, nil
}

func (c *AccessClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *AccessClient) post(ctx context.Context, path string, payload, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *AccessClient) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("request to %s failed with code %d: %s", req.URL.Path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("request to %s failed with code %d: %s", req.URL.Path, resp.StatusCode, string(body))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", req.URL.Path, err)
	}
	return nil
}
