package config

import (
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/kart-io/trackinglog/pkg/errors"
)

// ChangeHandler is invoked with the reloaded viper instance.
type ChangeHandler func(v *viper.Viper) error

// Watcher watches the configuration file through viper and fsnotify and
// notifies subscribed handlers in id order.
type Watcher struct {
	viper    *viper.Viper
	log      core.Logger
	handlers map[string]ChangeHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for a viper instance that already has a
// configuration file. A nil logger uses the global logger.
func NewWatcher(v *viper.Viper, log core.Logger) *Watcher {
	if log == nil {
		log = logger.Global().With("component", "config")
	}
	return &Watcher{
		viper:    v,
		log:      log,
		handlers: make(map[string]ChangeHandler),
	}
}

// Subscribe registers handler under id, replacing any previous one.
func (w *Watcher) Subscribe(id string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = handler
	w.log.Debugw("config handler subscribed", "id", id)
}

// Unsubscribe removes the handler registered under id.
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.handlers[id]; ok {
		delete(w.handlers, id)
		w.log.Debugw("config handler unsubscribed", "id", id)
	}
}

// Start begins watching the configuration file. It is idempotent.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = true
	w.mu.Unlock()

	w.viper.OnConfigChange(func(e fsnotify.Event) {
		w.log.Infow("config file changed", "file", e.Name, "op", e.Op.String())
		_ = w.Notify()
	})
	w.viper.WatchConfig()
	w.log.Debug("config watcher started")
}

// Notify runs every handler once against the current configuration. A
// failing handler does not stop the others; the failures are combined.
func (w *Watcher) Notify() error {
	w.mu.RLock()
	if !w.watching {
		w.mu.RUnlock()
		return nil
	}
	ids := make([]string, 0, len(w.handlers))
	handlers := make(map[string]ChangeHandler, len(w.handlers))
	for id, h := range w.handlers {
		ids = append(ids, id)
		handlers[id] = h
	}
	w.mu.RUnlock()
	sort.Strings(ids)

	var err error
	for _, id := range ids {
		if herr := handlers[id](w.viper); herr != nil {
			w.log.Errorw("config handler failed", "id", id, "error", herr)
			err = multierr.Append(err, herr)
			continue
		}
		w.log.Debugw("config handler applied change", "id", id)
	}
	return err
}

// Stop stops dispatching changes. viper keeps its file watch running but
// handlers are no longer called.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	w.watching = false
	w.log.Debug("config watcher stopped")
}

// IsWatching reports whether the watcher dispatches changes.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// HandlerCount returns the number of registered handlers.
func (w *Watcher) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}

// ReloadableSubscriber decodes one configuration section and hands it to a
// Reloadable component.
type ReloadableSubscriber struct {
	component Reloadable
	configKey string
	newTarget func() interface{}
}

// NewReloadableSubscriber creates a subscriber for the section configKey.
// newTarget returns a fresh pointer to decode each change into.
func NewReloadableSubscriber(component Reloadable, configKey string, newTarget func() interface{}) *ReloadableSubscriber {
	return &ReloadableSubscriber{
		component: component,
		configKey: configKey,
		newTarget: newTarget,
	}
}

// Handler returns the ChangeHandler to register with a Watcher.
func (rs *ReloadableSubscriber) Handler() ChangeHandler {
	return func(v *viper.Viper) error {
		target := rs.newTarget()
		if err := v.UnmarshalKey(rs.configKey, target); err != nil {
			return errors.ErrInvalidConfig.WithMessagef("decode config key %q", rs.configKey).WithCause(err)
		}
		if err := rs.component.OnConfigChange(target); err != nil {
			return errors.ErrInvalidConfig.WithMessagef("config key %q rejected", rs.configKey).WithCause(err)
		}
		return nil
	}
}
