package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/mschirtzinger/notesync/internal/ui"
)

// Terminal prints notifications as single styled lines.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal returns a sink writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Notify implements Sink.
func (t *Terminal) Notify(n Notification) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var marker string
	switch n.Level {
	case LevelSuccess:
		marker = ui.RenderPass("✓")
	case LevelWarning:
		marker = ui.RenderWarn("!")
	case LevelError:
		marker = ui.RenderFail("✗")
	default:
		marker = ui.RenderAccent("•")
	}

	line := fmt.Sprintf("%s %s", marker, ui.RenderTitle(n.Title))
	if n.Message != "" {
		line += " " + ui.RenderMuted(n.Message)
	}
	if n.Action != nil {
		line += " " + ui.RenderAccent("["+n.Action.Label+"]")
	}
	fmt.Fprintln(t.w, line)
}
