package httpserver

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/agent"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/cryptoutils"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/interfaces"
	"github.com/Ram19prakash/Blink-Based-Threshold-Cryptography/shares"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes HTTP requests for the access coordinator. Session
// actions are forwarded to the replica agent; document sealing and share
// listing go through the storage backend and share source directly.
type Handler struct {
	agent   *agent.Agent
	source  interfaces.ShareSource
	storage interfaces.StorageBackend
	log     *slog.Logger
}

// NewHandler creates a handler over the given replica agent, share source
// and document storage.
func NewHandler(replica *agent.Agent, source interfaces.ShareSource, storage interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{
		agent:   replica,
		source:  source,
		storage: storage,
		log:     log,
	}
}

type statusResponse struct {
	Session      interface{} `json:"session"`
	Unauthorized uint64      `json:"unauthorized_attempts"`
}

type accessRequest struct {
	UserID interfaces.ParticipantID `json:"user_id"`
}

type processBlinksRequest struct {
	Blinks []cryptoutils.BlinkEvent `json:"blinks"`
}

type processBlinksResponse struct {
	Key        string `json:"key"`
	BlinkCount int    `json:"blink_count"`
}

type sealRequest struct {
	Document string                   `json:"document"`
	Key      string                   `json:"key,omitempty"`
	Blinks   []cryptoutils.BlinkEvent `json:"blinks,omitempty"`

	// Optional share issuance. When participants or n_users is set the
	// key is split into a fresh bundle alongside the sealed blob.
	Participants []interfaces.ParticipantID `json:"participants,omitempty"`
	NUsers       int                        `json:"n_users,omitempty"`
	Threshold    int                        `json:"threshold,omitempty"`
}

type sealResponse struct {
	ContentID string            `json:"content_id"`
	BundleID  string            `json:"bundle_id,omitempty"`
	Shares    map[string]string `json:"shares,omitempty"`
}

type unsealRequest struct {
	UserID    interfaces.ParticipantID `json:"user_id"`
	ContentID string                   `json:"content_id"`
	Key       string                   `json:"key,omitempty"`
	Blinks    []cryptoutils.BlinkEvent `json:"blinks,omitempty"`
	Shares    []interfaces.Share       `json:"shares,omitempty"`
}

type unsealResponse struct {
	Document string `json:"document"`
}

type insufficientSharesResponse struct {
	Error     string `json:"error"`
	Collected int    `json:"collected"`
	Required  int    `json:"required"`
}

// HandleStatus returns the session snapshot plus the replica's unauthorized
// attempt counter.
//
// URL format: GET /api/access/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{
		Session:      h.agent.Status(),
		Unauthorized: h.agent.UnauthorizedCount(),
	})
}

// HandleRequest opens a new access request for the posted user.
//
// URL format: POST /api/access/request
// Request body: {"user_id": "..."}
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, &RequestError{http.StatusBadRequest, errors.New("missing user_id")})
		return
	}

	snap, err := h.agent.RequestAccess(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleGrant records the posted user's grant for the active request.
//
// URL format: POST /api/access/grant
func (h *Handler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, &RequestError{http.StatusBadRequest, errors.New("missing user_id")})
		return
	}

	snap, err := h.agent.GrantAccess(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleOpen attempts to open the document as the posted user.
//
// URL format: POST /api/access/open
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, &RequestError{http.StatusBadRequest, errors.New("missing user_id")})
		return
	}

	snap, err := h.agent.OpenDocument(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleReset forces the session back to idle.
//
// URL format: POST /api/access/reset
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.agent.Reset(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// HandleProcessBlinks derives a document key from a captured blink pattern.
//
// URL format: POST /api/blinks/process
// Request body: {"blinks": [{"timestamp":..., "duration":..., ...}]}
//
// Response: {"key": "<hex>", "blink_count": n}
func (h *Handler) HandleProcessBlinks(w http.ResponseWriter, r *http.Request) {
	var req processBlinksRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	key, err := cryptoutils.DeriveKeyFromBlinks(req.Blinks)
	if err != nil {
		h.writeError(w, &RequestError{http.StatusBadRequest, err})
		return
	}
	h.writeJSON(w, http.StatusOK, processBlinksResponse{
		Key:        hex.EncodeToString(key),
		BlinkCount: len(req.Blinks),
	})
}

// HandleSealDocument encrypts the posted document under a blink-derived key
// and stores the sealed blob. If the request names participants (or a user
// count) the key is additionally split into a share bundle, so the sealed
// key never has to be kept anywhere in one piece.
//
// URL format: POST /api/document/seal
// Request body: {"document": "<base64>", "key": "<hex>"} or
// {"document": "<base64>", "blinks": [...], "n_users": 3, "threshold": 2}
//
// Response: {"content_id": "<hex>", "bundle_id": ..., "shares": {...}}
func (h *Handler) HandleSealDocument(w http.ResponseWriter, r *http.Request) {
	var req sealRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	plaintext, err := base64.StdEncoding.DecodeString(req.Document)
	if err != nil {
		h.writeError(w, &RequestError{http.StatusBadRequest, fmt.Errorf("invalid document encoding: %w", err)})
		return
	}
	key, err := h.resolveKey(req.Key, req.Blinks)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sealed, err := cryptoutils.SealDocument(key, plaintext)
	if err != nil {
		h.writeError(w, err)
		return
	}
	id, err := h.storage.Store(r.Context(), sealed, interfaces.DocumentType)
	if err != nil {
		h.log.Error("Failed to store sealed document", "err", err)
		h.writeError(w, err)
		return
	}

	resp := sealResponse{ContentID: id.String()}
	if len(req.Participants) > 0 || req.NUsers > 0 {
		bundleID, bundle, err := h.issueShares(r, key, &req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		resp.BundleID = bundleID.String()
		resp.Shares = make(map[string]string, len(bundle.Shares))
		for participant, share := range bundle.Shares {
			resp.Shares[participant.String()] = string(share)
		}
	}

	h.log.Info("Document sealed", slog.String("contentID", id.String()), slog.Int("size", len(plaintext)))
	h.writeJSON(w, http.StatusOK, resp)
}

// issueShares splits the document key into a bundle for the requested
// participants, stores it, and points the share source at it if the source
// supports bundle swapping.
func (h *Handler) issueShares(r *http.Request, key []byte, req *sealRequest) (interfaces.ContentID, shares.Bundle, error) {
	participants := req.Participants
	if len(participants) == 0 {
		for i := 1; i <= req.NUsers; i++ {
			participants = append(participants, interfaces.ParticipantID(fmt.Sprintf("user-%d", i)))
		}
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = h.agent.Status().Threshold
	}

	bundle, err := shares.Issue(key, participants, threshold)
	if err != nil {
		return interfaces.ContentID{}, shares.Bundle{}, &RequestError{http.StatusBadRequest, err}
	}
	data, err := bundle.Marshal()
	if err != nil {
		return interfaces.ContentID{}, shares.Bundle{}, err
	}
	bundleID, err := h.storage.Store(r.Context(), data, interfaces.ShareBundleType)
	if err != nil {
		h.log.Error("Failed to store share bundle", "err", err)
		return interfaces.ContentID{}, shares.Bundle{}, err
	}

	if src, ok := h.source.(interface{ SetBundleID(interfaces.ContentID) }); ok {
		src.SetBundleID(bundleID)
	}
	h.log.Info("Share bundle issued",
		slog.String("bundleID", bundleID.String()),
		slog.Int("threshold", threshold),
		slog.Int("participants", len(participants)))
	return bundleID, bundle, nil
}

// HandleUnsealDocument fetches and decrypts a sealed document. The session
// must be opened and the posted user must be its requester; anyone else is
// turned away before the blob is touched. The key may be posted directly,
// re-derived from blinks, or recombined from at least threshold-many share
// tokens. Too few tokens trip the insufficient-shares alarm.
//
// URL format: POST /api/document/unseal
// Request body: {"user_id": "...", "content_id": "<hex>", "key": "<hex>"}
// or {"user_id": ..., "content_id": ..., "shares": ["...", ...]}
func (h *Handler) HandleUnsealDocument(w http.ResponseWriter, r *http.Request) {
	var req unsealRequest
	if err := h.readJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, &RequestError{http.StatusBadRequest, errors.New("missing user_id")})
		return
	}

	snap := h.agent.Status()
	if snap.Phase != interfaces.PhaseOpened || snap.Requester != req.UserID {
		h.writeError(w, interfaces.ErrNotAuthorized)
		return
	}

	id, err := interfaces.NewContentIDFromHex(req.ContentID)
	if err != nil {
		h.writeError(w, &RequestError{http.StatusBadRequest, err})
		return
	}

	var key []byte
	if len(req.Shares) > 0 {
		if len(req.Shares) < snap.Threshold {
			h.log.Warn("Unseal attempted with too few shares",
				slog.String("userID", req.UserID.String()),
				slog.Int("collected", len(req.Shares)),
				slog.Int("required", snap.Threshold))
			h.writeJSON(w, http.StatusForbidden, insufficientSharesResponse{
				Error:     "insufficient_shares",
				Collected: len(req.Shares),
				Required:  snap.Threshold,
			})
			return
		}
		key, err = shares.Recombine(req.Shares)
		if err != nil {
			h.writeError(w, &RequestError{http.StatusBadRequest, err})
			return
		}
	} else {
		key, err = h.resolveKey(req.Key, req.Blinks)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	sealed, err := h.storage.Fetch(r.Context(), id, interfaces.DocumentType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	plaintext, err := cryptoutils.UnsealDocument(key, sealed)
	if err != nil {
		h.writeError(w, &RequestError{http.StatusForbidden, err})
		return
	}

	h.writeJSON(w, http.StatusOK, unsealResponse{
		Document: base64.StdEncoding.EncodeToString(plaintext),
	})
}

// HandleShares lists the participants with issued shares. Tokens are
// redacted, only their presence is reported.
//
// URL format: GET /api/shares
func (h *Handler) HandleShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.source.Shares(r.Context())
	if err != nil {
		h.log.Error("Failed to fetch shares", "err", err)
		h.writeError(w, err)
		return
	}

	redacted := make(map[string]string, len(shares))
	for participant, share := range shares {
		redacted[participant.String()] = share.Redacted()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"shares": redacted})
}

func (h *Handler) resolveKey(keyHex string, blinks []cryptoutils.BlinkEvent) ([]byte, error) {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, &RequestError{http.StatusBadRequest, fmt.Errorf("invalid key encoding: %w", err)}
		}
		if len(key) != cryptoutils.DerivedKeyLength {
			return nil, &RequestError{http.StatusBadRequest, fmt.Errorf("key must be %d bytes", cryptoutils.DerivedKeyLength)}
		}
		return key, nil
	}
	if len(blinks) == 0 {
		return nil, &RequestError{http.StatusBadRequest, errors.New("either key or blinks required")}
	}
	key, err := cryptoutils.DeriveKeyFromBlinks(blinks)
	if err != nil {
		return nil, &RequestError{http.StatusBadRequest, err}
	}
	return key, nil
}

func (h *Handler) readJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return &RequestError{http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err)}
	}
	if len(body) == 0 {
		return &RequestError{http.StatusBadRequest, errors.New("empty request body")}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &RequestError{http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)}
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeError maps domain errors onto HTTP status codes. Lifecycle conflicts
// are 409s, authorization violations 403s, missing content 404s.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &reqErr):
		status = reqErr.StatusCode
	case errors.Is(err, interfaces.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrAlreadyRequested),
		errors.Is(err, interfaces.ErrNoActiveRequest),
		errors.Is(err, interfaces.ErrDuplicateGrant),
		errors.Is(err, interfaces.ErrThresholdNotMet):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrShareUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrContentNotFound):
		status = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encodeErr != nil {
		h.log.Error("Failed to encode error response", "err", encodeErr)
	}
}
