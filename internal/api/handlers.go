package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/stashd/warden/internal/cache"
	"github.com/stashd/warden/internal/config"
	apperrors "github.com/stashd/warden/internal/errors"
	"github.com/stashd/warden/internal/metrics"
	"github.com/stashd/warden/internal/origin"
	"github.com/stashd/warden/internal/ratelimit"
	"github.com/stashd/warden/internal/validation"
)

type Server struct {
	cfg         *config.Config
	kv          *cache.Cache[json.RawMessage]
	lookups     *cache.Cache[[]byte]
	limiter     *ratelimit.Limiter
	origin      *origin.Client
	kvStats     *metrics.Collector
	lookupStats *metrics.Collector
}

func NewServer(
	cfg *config.Config,
	kv *cache.Cache[json.RawMessage],
	lookups *cache.Cache[[]byte],
	limiter *ratelimit.Limiter,
	originClient *origin.Client,
	kvStats, lookupStats *metrics.Collector,
) *Server {
	return &Server{
		cfg:         cfg,
		kv:          kv,
		lookups:     lookups,
		limiter:     limiter,
		origin:      originClient,
		kvStats:     kvStats,
		lookupStats: lookupStats,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, appErr *apperrors.AppError) {
	respondJSON(w, appErr.StatusCode, appErr)
}

// keyParam pulls the key out of the route, undoes percent-encoding and
// validates it.
func keyParam(r *http.Request) (string, *apperrors.AppError) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		return "", apperrors.NewValidationError(
			"Key is not valid percent-encoding",
			"INVALID_KEY",
			"Percent-encode reserved characters in the key.",
		)
	}
	if err := validation.Key(key); err != nil {
		return "", apperrors.NewValidationError(
			err.Error(),
			"INVALID_KEY",
			"Keys are UTF-8, at most 256 bytes, without control characters.",
		)
	}
	return key, nil
}

type SetKeyRequest struct {
	Value     json.RawMessage `json:"value"`
	TTLMillis int64           `json:"ttl_ms,omitempty"`
}

type SetKeyResponse struct {
	Key       string `json:"key"`
	TTLMillis int64  `json:"ttl_ms"`
}

func (s *Server) HandleSetKey(w http.ResponseWriter, r *http.Request) {
	key, appErr := keyParam(r)
	if appErr != nil {
		respondError(w, appErr)
		return
	}

	var req SetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apperrors.NewValidationError(
			"Invalid request body",
			"INVALID_BODY",
			`Send JSON like {"value": ..., "ttl_ms": 60000}.`,
		))
		return
	}
	if len(req.Value) == 0 {
		respondError(w, apperrors.NewValidationError(
			"Value is required",
			"MISSING_VALUE",
			"Include a value field in the request body.",
		))
		return
	}
	if err := validation.TTLMillis(req.TTLMillis); err != nil {
		respondError(w, apperrors.NewValidationError(
			err.Error(),
			"INVALID_TTL",
			"Use a positive ttl_ms, or omit it to get the default TTL.",
		))
		return
	}

	if err := s.kv.SetWithTTL(key, req.Value, time.Duration(req.TTLMillis)*time.Millisecond); err != nil {
		respondError(w, apperrors.NewInternalError("Failed to store value", "STORE_FAILED", err))
		return
	}

	// Echo the TTL the entry actually got, so callers see the default
	// applied when they omitted ttl_ms.
	remaining, _ := s.kv.TTL(key)
	respondJSON(w, http.StatusOK, SetKeyResponse{Key: key, TTLMillis: remaining.Milliseconds()})
}

type GetKeyResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	TTLMillis int64           `json:"ttl_ms"`
}

func (s *Server) HandleGetKey(w http.ResponseWriter, r *http.Request) {
	key, appErr := keyParam(r)
	if appErr != nil {
		respondError(w, appErr)
		return
	}

	value, ok, err := s.kv.Get(key)
	if err != nil {
		respondError(w, apperrors.NewInternalError("Failed to read value", "READ_FAILED", err))
		return
	}
	if !ok {
		respondError(w, apperrors.NewNotFoundError(
			"Key not found",
			"KEY_NOT_FOUND",
			"The key was never stored, or its TTL has passed.",
		))
		return
	}

	remaining, _ := s.kv.TTL(key)
	respondJSON(w, http.StatusOK, GetKeyResponse{Key: key, Value: value, TTLMillis: remaining.Milliseconds()})
}

type DeleteKeyResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	key, appErr := keyParam(r)
	if appErr != nil {
		respondError(w, appErr)
		return
	}

	deleted, err := s.kv.Delete(key)
	if err != nil {
		respondError(w, apperrors.NewInternalError("Failed to delete value", "DELETE_FAILED", err))
		return
	}
	respondJSON(w, http.StatusOK, DeleteKeyResponse{Key: key, Deleted: deleted})
}

type FlushResponse struct {
	Dropped map[string]int `json:"dropped"`
}

func (s *Server) HandleFlush(w http.ResponseWriter, r *http.Request) {
	dropped := map[string]int{
		"kv":     s.kv.Len(),
		"lookup": s.lookups.Len(),
	}
	s.kv.Clear()
	s.lookups.Clear()
	respondJSON(w, http.StatusOK, FlushResponse{Dropped: dropped})
}

type KeyInfo struct {
	Key       string `json:"key"`
	TTLMillis int64  `json:"ttl_ms"`
}

type KeysResponse struct {
	Caches map[string][]KeyInfo `json:"caches"`
}

func keyInfos[V any](c *cache.Cache[V]) []KeyInfo {
	keys := c.Keys()
	slices.Sort(keys)
	return lo.Map(keys, func(key string, _ int) KeyInfo {
		remaining, _ := c.TTL(key)
		return KeyInfo{Key: key, TTLMillis: remaining.Milliseconds()}
	})
}

func (s *Server) HandleKeys(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, KeysResponse{
		Caches: map[string][]KeyInfo{
			"kv":     keyInfos(s.kv),
			"lookup": keyInfos(s.lookups),
		},
	})
}

type CacheStats struct {
	Entries  int              `json:"entries"`
	Counters metrics.Snapshot `json:"counters"`
}

type StatsResponse struct {
	Caches         map[string]CacheStats `json:"caches"`
	TrackedClients int                   `json:"tracked_clients"`
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Caches: map[string]CacheStats{
			"kv":     {Entries: s.kv.Len(), Counters: s.kvStats.Snapshot()},
			"lookup": {Entries: s.lookups.Len(), Counters: s.lookupStats.Snapshot()},
		},
		TrackedClients: s.limiter.Size(),
	})
}

func (s *Server) HandleLookup(w http.ResponseWriter, r *http.Request) {
	key, appErr := keyParam(r)
	if appErr != nil {
		respondError(w, appErr)
		return
	}
	if s.origin == nil {
		respondError(w, apperrors.NewNotFoundError(
			"Lookup origin is not configured",
			"LOOKUP_DISABLED",
			"Set ORIGIN_BASE_URL to enable read-through lookups.",
		))
		return
	}

	value, err := s.lookups.GetOrLoad(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		return s.origin.Fetch(ctx, key)
	})
	if err != nil {
		if errors.Is(err, origin.ErrNotFound) {
			respondError(w, apperrors.NewNotFoundError(
				"Origin has no value for this key",
				"ORIGIN_KEY_NOT_FOUND",
				"",
			))
			return
		}
		var upstreamErr *apperrors.AppError
		if errors.As(err, &upstreamErr) {
			respondError(w, upstreamErr)
			return
		}
		respondError(w, apperrors.NewUpstreamError("Origin fetch failed", "ORIGIN_FETCH_FAILED", err))
		return
	}

	if remaining, ok := s.lookups.TTL(key); ok {
		w.Header().Set("X-Cache-TTL-Ms", strconv.FormatInt(remaining.Milliseconds(), 10))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(value)
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.cfg.ServiceName,
		Version: s.cfg.ServiceVersion,
	})
}
