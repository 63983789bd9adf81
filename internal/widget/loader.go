// Package widget runs the hosted payment widget from the server side: it
// makes sure the widget SDK is reachable before any order is created and
// tracks one widget session per gateway order until its terminal callback
// arrives.
package widget

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
)

const maxScriptSize = 4 << 20

// ScriptLoader fetches the widget SDK script at most once per process. A
// failed fetch is not remembered, so the next Load tries again.
type ScriptLoader struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	loaded  bool
	fetches int
}

func NewScriptLoader(url string, client *http.Client) *ScriptLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &ScriptLoader{url: url, client: client}
}

func (l *ScriptLoader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return nil
	}
	l.fetches++

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "load widget sdk"), domain.ErrSdkLoadFailed)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "load widget sdk"), domain.ErrSdkLoadFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Mark(errors.Newf("load widget sdk: status %d", resp.StatusCode), domain.ErrSdkLoadFailed)
	}
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return errors.Mark(errors.Wrap(err, "load widget sdk"), domain.ErrSdkLoadFailed)
	}
	if n == 0 {
		return errors.Mark(errors.New("load widget sdk: empty script"), domain.ErrSdkLoadFailed)
	}

	l.loaded = true
	return nil
}

func (l *ScriptLoader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Fetches reports how many times the script was requested.
func (l *ScriptLoader) Fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}
