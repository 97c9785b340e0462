package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/utils"
)

// Decider works out how (or whether) one URL should be transferred and
// drives the transfer when one is needed.
type Decider struct {
	BatchID  string
	Source   utils.Source
	Reporter utils.Reporter
}

// ReadLocalState reports whether path exists and its size. A directory in
// place of the file is a WriteError.
func ReadLocalState(path string) (utils.LocalState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return utils.LocalState{}, nil
	}
	if err != nil {
		return utils.LocalState{}, &utils.WriteError{Path: path, Err: err}
	}
	if info.IsDir() {
		return utils.LocalState{}, &utils.WriteError{Path: path, Err: errors.New("destination is a directory")}
	}
	return utils.LocalState{Exists: true, Size: info.Size()}, nil
}

// Decide picks exactly one action from the local state and the remote size.
// An empty local file is overwritten rather than appended to, and any local
// size at or above the remote size counts as complete.
func Decide(local utils.LocalState, remoteSize int64) utils.Decision {
	d := utils.Decision{RemoteSize: remoteSize, Local: local}
	switch {
	case !local.Exists:
		d.Action = utils.ActionCreate
	case local.Size == 0:
		d.Action = utils.ActionOverwrite
	case local.Size >= remoteSize:
		d.Action = utils.ActionSkip
	default:
		d.Action = utils.ActionAppend
		d.Offset = local.Size
	}
	return d
}

// Plan resolves the target and its decision without opening any content.
func (d *Decider) Plan(ctx context.Context, url, dir string) (utils.Target, utils.Decision, error) {
	target, err := utils.NewTarget(url, dir)
	if err != nil {
		return target, utils.Decision{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target.DestinationPath), 0755); err != nil {
		return target, utils.Decision{}, &utils.WriteError{Path: dir, Err: err}
	}
	local, err := ReadLocalState(target.DestinationPath)
	if err != nil {
		return target, utils.Decision{}, err
	}
	remoteSize, err := d.Source.Size(ctx, url)
	if err != nil {
		var sizeErr *utils.SizeUnavailableError
		if errors.As(err, &sizeErr) {
			sizeErr.Name = target.Name()
		}
		return target, utils.Decision{}, err
	}
	decision := Decide(local, remoteSize)
	log.Debug().Str("op", "transfer/decider").Str("target", target.Name()).Str("action", decision.Action.String()).
		Int64("local", local.Size).Int64("remote", remoteSize).Msg("Decision made")
	return target, decision, nil
}

// Run plans the target and, unless it is skipped, streams the missing bytes.
func (d *Decider) Run(ctx context.Context, url, dir string) (utils.Decision, error) {
	target, decision, err := d.Plan(ctx, url, dir)
	if err != nil {
		return decision, err
	}
	if decision.Action == utils.ActionSkip {
		d.report(target, decision, utils.EventSkip)
		return decision, nil
	}

	body, decision, err := d.open(ctx, target, decision)
	if err != nil {
		return decision, err
	}
	defer body.Close()

	if decision.Action == utils.ActionAppend {
		d.report(target, decision, utils.EventResume)
	} else {
		d.report(target, decision, utils.EventStart)
	}
	mode, _ := decision.Mode()
	t := &Transfer{
		BatchID:    d.BatchID,
		Target:     target,
		Mode:       mode,
		Offset:     decision.Offset,
		RemoteSize: decision.RemoteSize,
		Reporter:   d.Reporter,
	}
	if _, err := t.Run(body); err != nil {
		return decision, err
	}
	return decision, nil
}

// open issues the range request. An append answered with the full resource
// becomes an overwrite before any byte is written.
func (d *Decider) open(ctx context.Context, target utils.Target, decision utils.Decision) (io.ReadCloser, utils.Decision, error) {
	if decision.Offset >= decision.RemoteSize {
		// Nothing to fetch (empty remote); still create or truncate the file.
		return io.NopCloser(bytes.NewReader(nil)), decision, nil
	}
	resp, err := d.Source.OpenRange(ctx, target.URL, decision.Offset)
	if err != nil {
		return nil, decision, err
	}
	if decision.Action == utils.ActionAppend && !resp.Partial {
		log.Warn().Str("op", "transfer/decider").Str("target", target.Name()).
			Msg("Server ignored the range request, restarting download")
		decision.Action = utils.ActionOverwrite
		decision.Offset = 0
	}
	if resp.Partial && resp.Offset != decision.Offset {
		resp.Body.Close()
		return nil, decision, fmt.Errorf("%w for %s", utils.ErrRangeMismatch, target.URL)
	}
	return resp.Body, decision, nil
}

func (d *Decider) report(target utils.Target, decision utils.Decision, kind utils.EventKind) {
	if d.Reporter == nil {
		return
	}
	d.Reporter.Report(utils.Event{
		BatchID:  d.BatchID,
		Target:   target,
		Kind:     kind,
		Decision: decision,
		Decile:   noDecile,
		Written:  decision.Offset,
		Total:    decision.RemoteSize,
	})
}
