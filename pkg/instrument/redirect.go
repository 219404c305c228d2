package instrument

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kart-io/trackinglog/pkg/errors"
)

var (
	redirectMu     sync.Mutex
	activeRedirect *stdoutRedirect
)

// stdoutRedirect swaps os.Stdout for a pipe until restore is called. Only one
// redirect is active per process; a call started while one is active joins
// it and its output is captured by the owner.
type stdoutRedirect struct {
	orig   *os.File
	r, w   *os.File
	buf    bytes.Buffer
	done   chan struct{}
	once   sync.Once
	output string
}

// startRedirect returns nil without error when another redirect is active.
func startRedirect() (*stdoutRedirect, error) {
	redirectMu.Lock()
	defer redirectMu.Unlock()

	if activeRedirect != nil {
		return nil, nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.ErrIOFailure.WithMessage("create stdout pipe").WithCause(err)
	}

	rd := &stdoutRedirect{orig: os.Stdout, r: r, w: w, done: make(chan struct{})}
	go func() {
		defer close(rd.done)
		_, _ = io.Copy(&rd.buf, r)
	}()
	os.Stdout = w
	activeRedirect = rd
	return rd, nil
}

// restore puts the original stdout back and returns what was written, without
// a trailing newline. It is safe to call more than once and on a nil receiver.
func (rd *stdoutRedirect) restore() string {
	if rd == nil {
		return ""
	}
	rd.once.Do(func() {
		redirectMu.Lock()
		os.Stdout = rd.orig
		activeRedirect = nil
		redirectMu.Unlock()

		_ = rd.w.Close()
		<-rd.done
		_ = rd.r.Close()
		rd.output = strings.TrimRight(rd.buf.String(), "\n")
	})
	return rd.output
}
