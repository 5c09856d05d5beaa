// Package redact keeps credentials out of logs and error messages.
//
// Three layers are provided:
//
//   - Scrub replaces known secret values inside free-form text. The orchestrator
//     uses it on every error it returns, because a script may echo its own
//     environment.
//   - WithSecrets wraps a slog.Handler and applies Scrub to every record, for
//     loggers that belong to one submission and know its keys.
//   - NewHandler wraps a slog.Handler and masks any attribute whose key names a
//     credential, whatever the value is. It is installed once at startup.
package redact

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// Placeholder replaces a secret value.
const Placeholder = "[REDACTED]"

// Scrub returns s with every occurrence of each non-empty secret replaced.
//
// Secrets are replaced longest first, so a key that contains another key is
// never left half-masked. Short keys are scrubbed too, even though a very
// short one also masks unrelated text.
func Scrub(s string, secrets ...string) string {
	ordered := make([]string, 0, len(secrets))
	for _, secret := range secrets {
		if secret != "" {
			ordered = append(ordered, secret)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	for _, secret := range ordered {
		s = strings.ReplaceAll(s, secret, Placeholder)
	}
	return s
}

// ScrubLines applies Scrub to every element and returns a new slice.
func ScrubLines(lines []string, secrets ...string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Scrub(line, secrets...)
	}
	return out
}

// sensitiveKeyParts are matched case-insensitively against attribute keys.
var sensitiveKeyParts = []string{"apikey", "api_key", "token", "secret", "password", "authorization"}

// IsSensitiveKey reports whether an attribute or header name looks like it
// carries a credential.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr function.
//
// Values that already equal a model mask (strings starting with "***") pass
// through so the masked request body stays readable.
func ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if !IsSensitiveKey(a.Key) {
		return a
	}
	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		if v == "" || strings.HasPrefix(v, "***") {
			return a
		}
	}
	return slog.String(a.Key, Placeholder)
}

// Handler is a slog.Handler that masks sensitive attributes before delegating.
//
// slog's ReplaceAttr only sees attributes the built-in handlers format
// themselves; wrapping the handler lets any inner handler benefit, and also
// covers attributes attached with Logger.With.
type Handler struct {
	inner slog.Handler
}

// NewHandler wraps inner.
func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return &Handler{inner: h.inner.WithAttrs(clean)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

// redactAttr resolves LogValuers and walks groups so nested keys are checked too.
func redactAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = redactAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}
	return ReplaceAttr(nil, a)
}

// secretHandler scrubs known secret values out of every record.
type secretHandler struct {
	inner   slog.Handler
	secrets []string
}

// WithSecrets wraps inner so the message and every string-like attribute
// value of each record has secrets scrubbed. Unlike Handler, which masks by
// attribute name, this catches a known value wherever it appears, such as a
// key echoed back inside remote output.
func WithSecrets(inner slog.Handler, secrets ...string) slog.Handler {
	return &secretHandler{inner: inner, secrets: secrets}
}

func (h *secretHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *secretHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Scrub(r.Message, h.secrets...), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.scrubAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *secretHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.scrubAttr(a)
	}
	return &secretHandler{inner: h.inner.WithAttrs(clean), secrets: h.secrets}
}

func (h *secretHandler) WithGroup(name string) slog.Handler {
	return &secretHandler{inner: h.inner.WithGroup(name), secrets: h.secrets}
}

func (h *secretHandler) scrubAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]slog.Attr, len(group))
		for i, ga := range group {
			clean[i] = h.scrubAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	case slog.KindString, slog.KindAny:
		// KindAny covers errors and Stringers; they are logged as text anyway.
		return slog.String(a.Key, Scrub(a.Value.String(), h.secrets...))
	default:
		return a
	}
}
