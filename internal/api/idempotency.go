package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// NewTraceID returns a fresh per-call trace identifier.
func NewTraceID() string { return "trace_" + compactUUID()[:16] }

// NewIdempotencyKey returns a fresh key for one logical mutating call.
func NewIdempotencyKey() string { return "idem_" + compactUUID() }

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CallOption configures a single mutating call.
type CallOption func(*callConfig)

type callConfig struct {
	idempotencyKey string
}

// WithIdempotencyKey replays a logical call under a key the caller already
// used. Without it every call gets a fresh key.
func WithIdempotencyKey(key string) CallOption {
	return func(cfg *callConfig) { cfg.idempotencyKey = key }
}

func mutatingHeader(opts []CallOption) http.Header {
	cfg := callConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.idempotencyKey == "" {
		cfg.idempotencyKey = NewIdempotencyKey()
	}
	h := http.Header{}
	h.Set(HeaderIdempotencyKey, cfg.idempotencyKey)
	return h
}
