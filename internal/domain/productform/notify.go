package productform

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// NotificationKind classifies a notification for presentation.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyFailure NotificationKind = "failure"
	NotifyWarning NotificationKind = "warning"
)

// maxNotifications bounds the notifications kept on a form.
const maxNotifications = 20

// Notification is a human-readable message about the outcome of an operation.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Notifier receives notifications emitted by a form.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// LogNotifier writes notifications to the logger carried by the context.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(ctx context.Context, n Notification) {
	lg := zctx.From(ctx)
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message),
	}
	if n.Kind == NotifySuccess {
		lg.Info("Form notification", fields...)
		return
	}
	lg.Warn("Form notification", fields...)
}
