package sweeper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kart-io/trackinglog/pkg/errors"
	"github.com/kart-io/trackinglog/pkg/logmanager"
	emailopts "github.com/kart-io/trackinglog/pkg/options/email"
)

// outboxFile is the JSON lines file notifications are appended to.
const outboxFile = "outbox.jsonl"

var _ logmanager.Notifier = (*Outbox)(nil)

// Outbox stores notifications in the email folder for later delivery.
type Outbox struct {
	mu   sync.Mutex
	path string
	from string
}

type outboxRecord struct {
	Time    string `json:"time"`
	From    string `json:"from,omitempty"`
	Level   string `json:"level"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

// NewOutbox creates an outbox in the folder of o.
func NewOutbox(o *emailopts.Options) *Outbox {
	return &Outbox{
		path: filepath.Join(o.RootFolder, outboxFile),
		from: o.Username,
	}
}

// Path returns the outbox file.
func (b *Outbox) Path() string { return b.path }

// Notify implements logmanager.Notifier.
func (b *Outbox) Notify(ctx context.Context, n logmanager.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(outboxRecord{
		Time:    n.Time.Format(time.RFC3339),
		From:    b.from,
		Level:   n.Level.String(),
		Label:   n.Label,
		Message: n.Message,
	})
	if err != nil {
		return errors.ErrIOFailure.WithMessage("encode notification").WithCause(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return errors.ErrIOFailure.WithMessagef("create %s", filepath.Dir(b.path)).WithCause(err)
	}
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.ErrIOFailure.WithMessagef("open %s", b.path).WithCause(err)
	}
	if _, err = f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return errors.ErrIOFailure.WithMessagef("write %s", b.path).WithCause(err)
	}
	return f.Close()
}
