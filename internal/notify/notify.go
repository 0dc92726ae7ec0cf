package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/connectcg/friendsync/internal/logging"
)

// Level classifies a user-visible notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a message meant for the person using the client.
type Notification struct {
	Level   Level
	Message string
	Err     error
}

// Notifier surfaces notifications to the presentation layer.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Error builds an error-level notification.
func Error(message string, err error) Notification {
	return Notification{Level: LevelError, Message: message, Err: err}
}

// Info builds an info-level notification.
func Info(message string) Notification {
	return Notification{Level: LevelInfo, Message: message}
}

// LogNotifier writes notifications to the context logger.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := logging.FromContext(ctx)
	if n.Level == LevelError {
		attrs := []any{slog.String("message", n.Message)}
		if n.Err != nil {
			attrs = append(attrs, slog.String("error", n.Err.Error()))
		}
		logger.Error("notification", attrs...)
		return
	}
	logger.Info("notification", slog.String("message", n.Message))
}

// Recorder keeps every notification it receives, optionally forwarding them.
type Recorder struct {
	Next Notifier

	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Notify(ctx, n)
	}
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Errors returns only the error-level notifications.
func (r *Recorder) Errors() []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n)
		}
	}
	return out
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, Notification) {}
