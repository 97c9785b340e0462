package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/batchfetch/internal/utils"
)

type targetOutput struct {
	Name        string
	Status      string
	Message     string
	StreamLines []string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
	Index       int
}

type ErrorReport struct {
	Target string
	Error  error
	Time   time.Time
}

// Manager is the live terminal display for one batch. It implements
// utils.Reporter and redraws every displayTick.
type Manager struct {
	out         io.Writer
	outputs     map[string]*targetOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	count       int
	displayWg   sync.WaitGroup
}

func NewManager() *Manager {
	return &Manager{
		out:         os.Stdout,
		outputs:     make(map[string]*targetOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Report(ev utils.Event) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.lookup(ev.Target)
	info.LastUpdated = time.Now()
	name := info.Name
	switch ev.Kind {
	case utils.EventStart:
		info.Message = fmt.Sprintf("Downloading %s (%s)", name, utils.FormatBytes(uint64(ev.Total)))
		info.StreamLines = []string{m.progressLine(info, ev.Written, ev.Total)}
	case utils.EventResume:
		info.Message = fmt.Sprintf("Resuming %s (%s of %s)", name, utils.FormatBytes(uint64(ev.Written)), utils.FormatBytes(uint64(ev.Total)))
		info.StreamLines = []string{m.progressLine(info, ev.Written, ev.Total)}
	case utils.EventProgress:
		info.StreamLines = []string{m.progressLine(info, ev.Written, ev.Total)}
	case utils.EventSkip:
		info.StreamLines = nil
		info.Message = fmt.Sprintf("Skipped %s (match)", name)
		info.Status = "skip"
		info.Complete = true
	case utils.EventComplete:
		info.StreamLines = nil
		info.Message = fmt.Sprintf("Downloaded %s", name)
		info.Status = "success"
		info.Complete = true
	case utils.EventError:
		info.StreamLines = nil
		info.Message = fmt.Sprintf("Failed %s", name)
		info.Status = "error"
		info.Complete = true
		info.Error = ev.Err
		m.errors = append(m.errors, ErrorReport{Target: ev.Target.URL, Error: ev.Err, Time: time.Now()})
	}
}

// lookup registers the target on first sight. Caller holds the lock.
func (m *Manager) lookup(target utils.Target) *targetOutput {
	key := target.DestinationPath
	if key == "" {
		key = target.URL
	}
	if info, exists := m.outputs[key]; exists {
		return info
	}
	m.count++
	name := target.URL
	if target.DestinationPath != "" {
		name = target.Name()
	}
	info := &targetOutput{
		Name:        name,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		Index:       m.count,
	}
	m.outputs[key] = info
	return info
}

func (m *Manager) progressLine(info *targetOutput, written, total int64) string {
	elapsed := time.Since(info.StartTime).Seconds()
	return fmt.Sprintf("%s%s %s %s", PrintProgressBar(written, total, 30), debugStyle.Render(utils.FormatBytes(uint64(max(written, 0)))),
		StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(written, elapsed)))
}

func (m *Manager) statusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "skip":
		return infoStyle.Render(StyleSymbols["arrow"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func (m *Manager) styleMessage(status, message string) string {
	switch status {
	case "success":
		return successStyle.Render(message)
	case "error":
		return errorStyle.Render(message)
	case "skip":
		return infoStyle.Render(message)
	default:
		return pendingStyle.Render(message)
	}
}

func (m *Manager) sorted() (active, completed []*targetOutput) {
	var all []*targetOutput
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	for _, f := range all {
		if f.Complete {
			completed = append(completed, f)
		} else {
			active = append(active, f)
		}
	}
	return active, completed
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	availableLines := getTerminalHeight() - 3 // Leave some buffer for prompt
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	active, completed := m.sorted()
	// Completed targets give way to active ones when space runs out
	needed := len(completed)
	for _, f := range active {
		needed += 1 + len(f.StreamLines)
	}
	if needed > availableLines {
		keep := max(availableLines-(needed-len(completed)), 0)
		if len(completed) > keep {
			completed = completed[len(completed)-keep:]
		}
	}
	for _, info := range append(active, completed...) {
		if lineCount >= availableLines {
			break
		}
		elapsed := time.Since(info.StartTime).Round(time.Second)
		if info.Complete {
			elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
		}
		fmt.Fprintf(m.out, "%s%s %s %s\n", strings.Repeat(" ", 2), m.statusIndicator(info.Status),
			debugStyle.Render(elapsed.String()), m.styleMessage(info.Status, info.Message))
		lineCount++
		indent := strings.Repeat(" ", 2+4)
		for _, line := range info.StreamLines {
			if lineCount >= availableLines {
				break
			}
			fmt.Fprintf(m.out, "%s%s\n", indent, streamStyle.Render(line))
			lineCount++
		}
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				m.ShowSummary()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("Target: %s", err.Target)))
		fmt.Fprintf(m.out, "%s%s\n", strings.Repeat(" ", 2+4), errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.out)
	var success, skipped, failures int
	for _, info := range m.outputs {
		switch info.Status {
		case "success":
			success++
		case "skip":
			skipped++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.out, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d", success, len(m.outputs))))
	if skipped > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+infoStyle.Render(fmt.Sprintf("Skipped %d of %d", skipped, len(m.outputs))))
	}
	if failures > 0 {
		fmt.Fprintln(m.out, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failures, len(m.outputs))))
	}
	m.displayErrors()
	fmt.Fprintln(m.out)
}
