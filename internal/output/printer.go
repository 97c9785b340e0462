package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/tanq16/batchfetch/internal/utils"
)

// Printer writes one styled line per event. It is used when the live
// display is unavailable (piped output or --plain).
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Report(ev utils.Event) {
	line := FormatEvent(ev)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// FormatEvent renders ev as a single indented line.
func FormatEvent(ev utils.Event) string {
	name := ev.Target.Name()
	if ev.Target.DestinationPath == "" {
		name = ev.Target.URL
	}
	indent := "  "
	switch ev.Kind {
	case utils.EventStart:
		return indent + FPending(fmt.Sprintf("Starting %q (%s)", name, utils.FormatBytes(uint64(ev.Total))))
	case utils.EventResume:
		return indent + FPending(fmt.Sprintf("Resuming %q (%s of %s)", name,
			utils.FormatBytes(uint64(ev.Written)), utils.FormatBytes(uint64(ev.Total))))
	case utils.EventSkip:
		return indent + FInfo(fmt.Sprintf("Skipped %q (match)", name))
	case utils.EventProgress:
		percent := int64(100)
		if ev.Total > 0 {
			percent = ev.Written * 100 / ev.Total
		}
		return indent + FDebug(fmt.Sprintf("%q - %d%%", name, percent))
	case utils.EventComplete:
		return indent + FSuccess(fmt.Sprintf("Downloaded %q!", name))
	case utils.EventError:
		return indent + FError(fmt.Sprintf("Failed %q: %v", name, ev.Err))
	}
	return ""
}
