package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gemtrail/internal/lockfile"
	"gemtrail/internal/model"
	"gemtrail/internal/source"
	"gemtrail/internal/store"
)

// LockFile is the lock filename, created next to the source log.
const LockFile = ".process.lock"

// Options configures one processing run.
type Options struct {
	LogPath     string
	OutputDir   string
	Retain      bool // skip truncation after a successful run
	DecodeJSON  bool // decode allow-listed JSON string fields
	LockTimeout time.Duration
	Diag        io.Writer // per-record diagnostics; nil disables
}

// Result reports what one run did.
type Result struct {
	Stats       model.Stats
	NothingToDo bool
	Reason      string // set when NothingToDo
	Warnings    []string
	Files       []string // artifact filenames written, in flush order
	Truncated   bool
}

// Run executes one full pipeline pass: lock, stream, classify, accumulate,
// flush, truncate. A missing or empty log is success with zero work. Lock
// contention surfaces as lockfile.ErrContention; persistence failures are
// fatal and leave the log un-truncated, so a retry re-processes safely
// (merges are last-write-wins and therefore idempotent).
func Run(opts Options) (*Result, error) {
	diag := opts.Diag
	if diag == nil {
		diag = io.Discard
	}
	res := &Result{}

	info, err := os.Stat(opts.LogPath)
	if err != nil {
		if os.IsNotExist(err) {
			res.NothingToDo = true
			res.Reason = fmt.Sprintf("log file not found: %s", opts.LogPath)
			return res, nil
		}
		return nil, fmt.Errorf("checking log file: %w", err)
	}
	if info.Size() == 0 {
		res.NothingToDo = true
		res.Reason = fmt.Sprintf("log file is empty: %s", opts.LogPath)
		return res, nil
	}

	lock, err := lockfile.Acquire(filepath.Join(filepath.Dir(opts.LogPath), LockFile), opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	st, err := store.Open(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	stream, err := source.OpenStream(opts.LogPath)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = stream.Close() }()

	acc := NewAccumulator(st, &res.Stats)
	lastSession := ""
	for {
		raw, ok := stream.Next()
		if !ok {
			break
		}
		res.Stats.TotalRecords++

		ev, decodeWarns, ok := source.Classify(raw, opts.DecodeJSON)
		res.Stats.DecodeWarnings += len(decodeWarns)
		for _, w := range decodeWarns {
			fmt.Fprintf(diag, "  %s\n", w)
		}
		if !ok {
			res.Stats.Skipped++
			continue
		}

		if ev.SessionID != lastSession {
			fmt.Fprintf(diag, "processing session %s\n", ev.SessionID)
			lastSession = ev.SessionID
		}
		fmt.Fprintf(diag, "  %s: %s\n", ev.Kind, ev.PromptID)

		if err := acc.Ingest(ev); err != nil {
			return res, err
		}
	}
	if tailErr := stream.TailErr(); tailErr != nil {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("log ends with an incomplete record, processed the complete prefix: %v", tailErr))
	}

	if err := acc.Close(); err != nil {
		return res, err
	}
	res.Files = acc.Files()
	res.Warnings = append(res.Warnings, st.Warnings()...)

	// Truncate only after every flush above is durable.
	if !opts.Retain && res.Stats.SessionsProcessed > 0 {
		if err := os.Truncate(opts.LogPath, 0); err != nil {
			return res, fmt.Errorf("truncating log: %w", err)
		}
		res.Truncated = true
	}
	return res, nil
}
