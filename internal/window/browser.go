package window

import (
	"context"
	"sync/atomic"

	"github.com/dgellow/authbridge/internal/log"
	"github.com/pkg/browser"
)

// BrowserOpener opens popups in the system browser. The resulting window
// can't be observed, so it only reports closed after Close. Attempts opened
// this way settle through a message or the attempt timeout.
type BrowserOpener struct {
	openURL func(url string) error
}

// NewBrowserOpener creates an opener backed by the system browser
func NewBrowserOpener() *BrowserOpener {
	return &BrowserOpener{openURL: browser.OpenURL}
}

func (o *BrowserOpener) Open(_ context.Context, url string, _ Features) (Window, error) {
	if err := o.openURL(url); err != nil {
		// No usable browser is the CLI equivalent of a blocked popup
		log.LogWarnWithFields("window", "Failed to open system browser", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	return &browserWindow{}, nil
}

type browserWindow struct {
	closed atomic.Bool
}

func (w *browserWindow) Closed() bool { return w.closed.Load() }

func (w *browserWindow) Close() error {
	w.closed.Store(true)
	return nil
}
