package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/chatbi/chatbi/internal/config"
)

type ctxKey string

const (
	traceIDKey        ctxKey = "trace_id"
	conversationIDKey ctxKey = "conversation_id"
)

// NewLogger builds the service logger: JSON or text per config, annotated
// with service and profile. The handler is context aware, so any record
// logged through a *Context method carries the request's trace id and, once
// a session is resolved, its conversation id.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(contextHandler{handler}).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// contextHandler stamps request-scoped ids onto every record so call sites
// never attach them by hand.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		record.AddAttrs(slog.String("trace_id", traceID))
	}
	if conversationID := ConversationIDFromContext(ctx); conversationID != "" {
		record.AddAttrs(slog.String("conversation_id", conversationID))
	}
	return h.Handler.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(traceIDKey).(string)
	return value
}

// ContextWithConversationID tags the request context once the conversation
// is known, so downstream warnings can be tied back to a dialogue.
func ContextWithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationIDKey, conversationID)
}

func ConversationIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(conversationIDKey).(string)
	return value
}
