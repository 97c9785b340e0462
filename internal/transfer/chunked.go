package transfer

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/utils"
)

// Transfer streams one response body into its destination file.
type Transfer struct {
	BatchID    string
	Target     utils.Target
	Mode       utils.WriteMode
	Offset     int64
	RemoteSize int64
	Reporter   utils.Reporter
}

func openFlags(mode utils.WriteMode) int {
	switch mode {
	case utils.ModeOverwrite:
		return os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	case utils.ModeAppend:
		return os.O_CREATE | os.O_APPEND | os.O_WRONLY
	default:
		return os.O_CREATE | os.O_EXCL | os.O_WRONLY
	}
}

// Run writes body to the destination and returns the final byte total
// (offset included). Partial files are left on disk on failure.
func (t *Transfer) Run(body io.Reader) (int64, error) {
	path := t.Target.DestinationPath
	file, err := os.OpenFile(path, openFlags(t.Mode), 0644)
	if err != nil {
		return t.Offset, &utils.WriteError{Path: path, Err: err}
	}
	total, err := t.stream(file, body)
	if err != nil {
		file.Close()
		return total, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return total, &utils.WriteError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return total, &utils.WriteError{Path: path, Err: err}
	}
	t.report(utils.Event{Kind: utils.EventComplete, Decile: decileOf(total, t.RemoteSize), Written: total})
	log.Debug().Str("op", "transfer/chunked").Str("path", path).Int64("bytes", total).Msg("Transfer complete")
	return total, nil
}

func (t *Transfer) stream(dst io.Writer, body io.Reader) (int64, error) {
	progress := newProgressState(t.Offset, t.RemoteSize)
	buffer := make([]byte, utils.ChunkSize)
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := dst.Write(buffer[:bytesRead]); writeErr != nil {
				return progress.written, &utils.WriteError{Path: t.Target.DestinationPath, Err: writeErr}
			}
			if decile, crossed := progress.advance(int64(bytesRead)); crossed {
				t.report(utils.Event{Kind: utils.EventProgress, Decile: decile, Written: progress.written})
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return progress.written, fmt.Errorf("error reading %s: %w", t.Target.URL, readErr)
		}
	}
	if progress.written < t.RemoteSize {
		log.Warn().Str("op", "transfer/chunked").Str("path", t.Target.DestinationPath).
			Int64("written", progress.written).Int64("expected", t.RemoteSize).Msg("Stream ended before the reported size")
	}
	return progress.written, nil
}

func (t *Transfer) report(ev utils.Event) {
	if t.Reporter == nil {
		return
	}
	ev.BatchID = t.BatchID
	ev.Target = t.Target
	ev.Total = t.RemoteSize
	t.Reporter.Report(ev)
}
