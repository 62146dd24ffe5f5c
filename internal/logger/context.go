package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID    string    // OpenTelemetry trace ID
	SpanID     string    // OpenTelemetry span ID
	Operation  string    // cache-engine operation (restore, save, cas.bulk_write, ...)
	OrgID      string    // organization the request is scoped to
	UnitKey    string    // hex-encoded compilation unit key, when one request concerns a single unit
	ClientIP   string    // caller's IP address, without port
	AuthFlavor string    // authentication scheme used (bearer, none, ...)
	StartTime  time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:    lc.TraceID,
		SpanID:     lc.SpanID,
		Operation:  lc.Operation,
		OrgID:      lc.OrgID,
		UnitKey:    lc.UnitKey,
		ClientIP:   lc.ClientIP,
		AuthFlavor: lc.AuthFlavor,
		StartTime:  lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithOrg returns a copy with the organization set
func (lc *LogContext) WithOrg(orgID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.OrgID = orgID
	}
	return clone
}

// WithUnitKey returns a copy with the unit key set
func (lc *LogContext) WithUnitKey(unitKey string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UnitKey = unitKey
	}
	return clone
}

// WithAuth returns a copy with the authentication flavor set
func (lc *LogContext) WithAuth(authFlavor string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.AuthFlavor = authFlavor
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
