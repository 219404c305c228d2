package logmanager

import (
	"context"
	"time"
)

// Notification is a log entry flagged for delivery outside the sink file.
type Notification struct {
	Time    time.Time
	Level   Level
	Label   string
	Message string
}

// Notifier receives notify-flagged entries. No transport ships with the
// package; callers plug in their own.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) error { return nil }
