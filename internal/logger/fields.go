package logger

import (
	"log/slog"
)

// ============================================================================
// Field key constants
// ============================================================================
//
// Grouped by category so call sites can scan for the right key without
// hunting through the whole file. Keys are stable strings: they appear
// verbatim in JSON-formatted log output and should not be renamed casually.

const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Organization & authentication
	KeyOrgID      = "org_id"
	KeyClientIP   = "client_ip"
	KeyAuthFlavor = "auth_flavor"

	// Unit identity
	KeyUnitKey        = "unit_key"
	KeyUnitKind       = "unit_kind"
	KeyPackageName    = "package_name"
	KeyPackageVersion = "package_version"
	KeyTargetTriple   = "target_triple"
	KeyProfile        = "profile"
	KeyToolchain      = "toolchain"

	// CAS / content addressing
	KeyContentKey       = "content_key"
	KeyBytesTransferred = "bytes_transferred"
	KeyObjectCount      = "object_count"

	// Batch / request shape
	KeyBatchSize = "batch_size"
	KeyOperation = "operation"

	// Outcomes
	KeyCacheOutcome = "cache_outcome" // "hit" | "miss" | "partial"
	KeyRestoreCount = "restore_count"
	KeyFailedCount  = "failed_count"

	// Retry / backoff
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeySource     = "source"

	// Duration & errors
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"

	// Allowed-keys visibility cache
	KeyCacheHit      = "cache_hit"
	KeyCacheSize     = "cache_size"
	KeyCacheCapacity = "cache_capacity"
	KeyEvicted       = "evicted"
)

// ============================================================================
// Constructor functions
// ============================================================================

// TraceID attaches the active OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID attaches the active OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// OrgID attaches the organization a request is scoped to.
func OrgID(id string) slog.Attr {
	return slog.String(KeyOrgID, id)
}

// ClientIP attaches the caller's IP address, without port.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// UnitKey attaches a compilation unit's hex-encoded key.
func UnitKey(hex string) slog.Attr {
	return slog.String(KeyUnitKey, hex)
}

// UnitKind attaches a compilation unit's kind ("library",
// "build_script_compilation", "build_script_execution").
func UnitKind(kind string) slog.Attr {
	return slog.String(KeyUnitKind, kind)
}

// PackageName attaches the crate/package name a unit belongs to.
func PackageName(name string) slog.Attr {
	return slog.String(KeyPackageName, name)
}

// PackageVersion attaches the crate/package version a unit belongs to.
func PackageVersion(version string) slog.Attr {
	return slog.String(KeyPackageVersion, version)
}

// TargetTriple attaches the architecture/OS/ABI string a unit was
// compiled for.
func TargetTriple(triple string) slog.Attr {
	return slog.String(KeyTargetTriple, triple)
}

// Profile attaches the named compilation configuration ("debug",
// "release", ...).
func Profile(profile string) slog.Attr {
	return slog.String(KeyProfile, profile)
}

// Toolchain attaches the compiler version+commit identifier.
func Toolchain(id string) slog.Attr {
	return slog.String(KeyToolchain, id)
}

// ContentKey attaches a CAS object's hex-encoded Content Key.
func ContentKey(hex string) slog.Attr {
	return slog.String(KeyContentKey, hex)
}

// BytesTransferred attaches a byte count moved through the CAS client.
func BytesTransferred(n int64) slog.Attr {
	return slog.Int64(KeyBytesTransferred, n)
}

// ObjectCount attaches a count of CAS objects referenced by a call.
func ObjectCount(n int) slog.Attr {
	return slog.Int(KeyObjectCount, n)
}

// BatchSize attaches the number of items in a batched request.
func BatchSize(n int) slog.Attr {
	return slog.Int(KeyBatchSize, n)
}

// Operation attaches the cache-engine operation name (e.g. "restore",
// "save", "cas.bulk_write").
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// CacheOutcome attaches the result of a restore attempt: "hit", "miss", or
// "partial".
func CacheOutcome(outcome string) slog.Attr {
	return slog.String(KeyCacheOutcome, outcome)
}

// RestoreCount attaches the number of units successfully restored.
func RestoreCount(n int) slog.Attr {
	return slog.Int(KeyRestoreCount, n)
}

// FailedCount attaches the number of units that failed to restore or save.
func FailedCount(n int) slog.Attr {
	return slog.Int(KeyFailedCount, n)
}

// Attempt attaches the current retry attempt number (1-indexed).
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries attaches the configured retry ceiling.
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Source attaches a free-form description of where a value originated
// (e.g. "config_file", "env", "cli_flag").
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// DurationMs attaches an elapsed duration in fractional milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err attaches an error's message. Named Err rather than Error to avoid
// colliding with the package-level Error log function. A nil error yields
// an empty attr, which slog handlers omit.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode attaches a cacheerr.Kind's string form.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// CacheHit attaches whether an allowed-keys cache lookup hit.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheSize attaches the current entry count of the allowed-keys cache.
func CacheSize(n int) slog.Attr {
	return slog.Int(KeyCacheSize, n)
}

// CacheCapacity attaches the configured capacity of the allowed-keys cache.
func CacheCapacity(n int) slog.Attr {
	return slog.Int(KeyCacheCapacity, n)
}

// Evicted attaches a count of entries evicted from the allowed-keys cache.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}
