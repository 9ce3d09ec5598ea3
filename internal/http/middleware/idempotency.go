// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for the dashboard's unsafe
// methods (quote, confirm, deliver, delete). It validates an Idempotency-Key
// request header, optionally performs a lookup to detect previously
// completed actions, and annotates the request context so downstream
// handlers can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - bypass rate limiting when a replay is served (via an internal flag)
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header that conveys an idempotency key
// for unsafe operations. Dashboard forms send a fresh key per rendered form,
// so a double-submit of the same form carries the same key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderOperatorID identifies the dashboard operator issuing the action.
const HeaderOperatorID = "X-Operator-ID"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
	ctxKeyOperatorID = "operatorID"
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request would replay a previously completed
// action on the same record by the same operator.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// OperatorID returns the operator identity for this request, falling back to
// "operator" when the header is absent (the desk runs single-operator by
// default).
func OperatorID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyOperatorID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "operator"
}

// IdempotencyOptions configures header validation behavior for
// IdempotencyValidator. TTL enforcement lives in the lookup, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a completed, still-valid action exists
// for (operatorID, requestID, key) at the given time. Return exists=true when
// the prior action can be replayed; return an error only for lookup failures,
// which must not block normal processing.
type IdempotencyLookup func(ctx context.Context, operatorID, requestID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present),
// stashes it and the operator identity in the request context, and checks for
// a prior completed action via the supplied lookup. When a replay is
// detected, it marks the context so downstream components can:
//   - detect replay via IsReplay
//   - bypass rate limiting (internal flag checked by the RL middleware)
//
// Behavior:
//   - If the header is absent: the operator identity is still stashed,
//     everything else is a no-op.
//   - If the header fails validation: responds 400 with a compact error body.
//   - If lookup indicates a replay: sets replay + rate-bypass flags.
//
// The middleware does not itself serve a cached payload; handlers remain in
// control of how to answer replays.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		if op := c.GetHeader(HeaderOperatorID); op != "" {
			c.Set(ctxKeyOperatorID, op)
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			now := time.Now().UTC()
			if exists, _ := lookup(c.Request.Context(), OperatorID(c), c.Param("id"), key, now); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
