package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// FileStore keeps one directory entry set per cluster:
//
//	<id>.jsonl       append-only event log, one JSON object per line
//	<id>.index.json  last event and last successful resize per direction
//	<id>.lock        flock(2) target guarding both
//
// Cluster IDs are path-escaped to form file names.
type FileStore struct {
	dir string

	// mu serializes writers within the process; the flock covers other
	// processes.
	mu sync.Mutex
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) base(clusterID string) string {
	return filepath.Join(s.dir, url.PathEscape(clusterID))
}

func (s *FileStore) logPath(clusterID string) string   { return s.base(clusterID) + ".jsonl" }
func (s *FileStore) indexPath(clusterID string) string { return s.base(clusterID) + ".index.json" }
func (s *FileStore) lockPath(clusterID string) string  { return s.base(clusterID) + ".lock" }

// readIndex loads the index file. A missing file is an empty index.
func (s *FileStore) readIndex(clusterID string) (*index, error) {
	data, err := os.ReadFile(s.indexPath(clusterID))
	if os.IsNotExist(err) {
		return &index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var ix index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return &ix, nil
}

// writeIndex replaces the index file atomically via temp file and rename.
func (s *FileStore) writeIndex(clusterID string, ix *index) error {
	data, err := json.MarshalIndent(ix, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	target := s.indexPath(clusterID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// LastEvent returns the most recent event for clusterID, or nil.
func (s *FileStore) LastEvent(ctx context.Context, clusterID string) (*scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix, err := s.readIndex(clusterID)
	if err != nil {
		return nil, err
	}
	return ix.Last, nil
}

// LastSuccess returns the most recent successful resize in dir, or nil.
func (s *FileStore) LastSuccess(ctx context.Context, clusterID string, dir scaling.Direction) (*scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ix, err := s.readIndex(clusterID)
	if err != nil {
		return nil, err
	}
	return ix.lastSuccess(dir), nil
}

// Append writes ev to the cluster's log and updates its index under the
// cluster's file lock. Re-appending the most recent event is a no-op.
func (s *FileStore) Append(ctx context.Context, ev scaling.ScalingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	fl := newFileLock(s.lockPath(ev.ClusterID))
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	ix, err := s.readIndex(ev.ClusterID)
	if err != nil {
		return err
	}
	if ix.seen(ev) {
		return nil
	}

	// A previous attempt may have logged ev and then failed to write the
	// index. The log line stands; only the index needs catching up.
	tailID, torn, err := s.logTail(ev.ClusterID)
	if err != nil {
		return err
	}
	if tailID == ev.ID {
		ix.observe(ev)
		return s.writeIndex(ev.ClusterID, ix)
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}

	f, err := os.OpenFile(s.logPath(ev.ClusterID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}

	ix.observe(ev)
	return s.writeIndex(ev.ClusterID, ix)
}

// tailWindow bounds how much of the log logTail reads.
const tailWindow = 64 * 1024

// logTail returns the ID of the last complete line in the cluster's log and
// whether the log ends in a partial line.
func (s *FileStore) logTail(clusterID string) (string, bool, error) {
	f, err := os.Open(s.logPath(clusterID))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", false, fmt.Errorf("stat event log: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return "", false, nil
	}
	start := max(size-tailWindow, 0)
	buf := make([]byte, size-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return "", false, fmt.Errorf("read event log: %w", err)
	}

	torn := buf[len(buf)-1] != '\n'
	if torn {
		i := bytes.LastIndexByte(buf, '\n')
		if i < 0 {
			return "", true, nil
		}
		buf = buf[:i]
	}
	buf = bytes.TrimRight(buf, "\n")
	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[i+1:]
	}

	var tail struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(buf, &tail); err != nil {
		return "", torn, nil
	}
	return tail.ID, torn, nil
}

// Recent returns up to limit events for clusterID, newest first. Lines that
// fail to decode, such as a torn final write, are skipped.
func (s *FileStore) Recent(ctx context.Context, clusterID string, limit int) ([]scaling.ScalingEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.logPath(clusterID))
	if os.IsNotExist(err) {
		return []scaling.ScalingEvent{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []scaling.ScalingEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev scaling.ScalingEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
		// Keep memory bounded for long logs.
		if limit > 0 && len(events) > 2*limit {
			events = append(events[:0:0], events[len(events)-limit:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return newestFirst(events, limit), nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close(context.Context) error { return nil }
