package utils

import (
	"context"
	"io"
)

// Source is a remote that can report a total size and serve byte ranges.
type Source interface {
	Size(ctx context.Context, url string) (int64, error)
	OpenRange(ctx context.Context, url string, offset int64) (*RangeResponse, error)
}

// RangeResponse is an open content stream starting at Offset.
// Partial is false when the remote ignored the range and sent the whole resource.
type RangeResponse struct {
	Body    io.ReadCloser
	Offset  int64
	Partial bool
}

type Target struct {
	URL             string
	DestinationPath string
}

func (t Target) Name() string {
	return baseName(t.DestinationPath)
}

type LocalState struct {
	Exists bool
	Size   int64
}

type WriteMode int

const (
	ModeCreate WriteMode = iota
	ModeOverwrite
	ModeAppend
)

func (m WriteMode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeOverwrite:
		return "overwrite"
	case ModeAppend:
		return "append"
	}
	return "unknown"
}

type Action int

const (
	ActionCreate Action = iota
	ActionOverwrite
	ActionAppend
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionOverwrite:
		return "overwrite"
	case ActionAppend:
		return "append"
	case ActionSkip:
		return "skip"
	}
	return "unknown"
}

// Decision is computed once per target and never re-derived mid-stream.
type Decision struct {
	Action     Action
	Offset     int64
	RemoteSize int64
	Local      LocalState
}

// Mode maps a transferring action to its write mode. ok is false for ActionSkip.
func (d Decision) Mode() (mode WriteMode, ok bool) {
	switch d.Action {
	case ActionCreate:
		return ModeCreate, true
	case ActionOverwrite:
		return ModeOverwrite, true
	case ActionAppend:
		return ModeAppend, true
	}
	return 0, false
}

type EventKind int

const (
	EventStart EventKind = iota
	EventResume
	EventSkip
	EventProgress
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventResume:
		return "resume"
	case EventSkip:
		return "skip"
	case EventProgress:
		return "progress"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	}
	return "unknown"
}

type Event struct {
	BatchID  string
	Target   Target
	Kind     EventKind
	Decision Decision
	Decile   int
	Written  int64
	Total    int64
	Err      error
}

// Reporter consumes transfer events. Implementations must be safe for
// concurrent use since every transfer in a batch reports independently.
type Reporter interface {
	Report(ev Event)
}

type ReporterFunc func(ev Event)

func (f ReporterFunc) Report(ev Event) { f(ev) }

type URLListEntry struct {
	URL string `yaml:"link"`
}
