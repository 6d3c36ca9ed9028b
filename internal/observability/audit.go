package observability

import (
	"context"
	"log/slog"
	"net/http"
)

// Audit emits a structured audit event for a mutating HTTP request.
// Device hashes passed in attrs should already be redacted by the caller.
func Audit(r *http.Request, event string, attrs ...any) {
	base := []any{
		"event", event,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-Id"),
	}
	base = append(base, attrs...)
	slog.InfoContext(r.Context(), "audit", base...)
}

// AuditEvent is the request-less variant used by the sweep job.
func AuditEvent(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}

// RedactHash shortens a device hash for log output so full capability
// tokens never land in log storage.
func RedactHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8] + "…"
}
