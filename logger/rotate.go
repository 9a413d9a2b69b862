package logger

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// hourlyRotatingWriter appends to path, closing and reopening the file at
// a derived, hour-stamped name whenever the wall-clock hour advances. No
// full example repo in the retrieval pack vendors a rotation library, so
// this reimplements the original's RollingFileAppender(Rotation::HOURLY)
// behavior directly against the standard library.
type hourlyRotatingWriter struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	file     *os.File
	curHour  string
}

func newHourlyRotatingWriter(path string) (*hourlyRotatingWriter, error) {
	dir := filepath.Dir(path)
	prefix := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w := &hourlyRotatingWriter{dir: dir, prefix: prefix}
	if err := w.rotateLocked(time.Now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *hourlyRotatingWriter) hourStamp(t time.Time) string {
	return t.Format("2006-01-02-15")
}

func (w *hourlyRotatingWriter) rotateLocked(t time.Time) error {
	if w.file != nil {
		w.file.Close()
	}
	stamp := w.hourStamp(t)
	name := filepath.Join(w.dir, w.prefix+"."+stamp)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.curHour = stamp
	return nil
}

// Write implements io.Writer, rotating to a new hour-stamped file first if
// the wall clock has moved into a new hour since the last write.
func (w *hourlyRotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if w.hourStamp(now) != w.curHour {
		if err := w.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

// Sync flushes the underlying file, satisfying zapcore.WriteSyncer.
func (w *hourlyRotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the currently open file.
func (w *hourlyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// switchableSyncer is a zapcore.WriteSyncer whose target can be swapped
// after construction. zap cores are wired to a WriteSyncer once at
// zapcore.NewCore time; since Init must be able to redirect the file
// target on a later call without rebuilding the whole tee, the file core
// is built once against a switchableSyncer and only its target changes.
type switchableSyncer struct {
	mu     sync.Mutex
	target *hourlyRotatingWriter
}

func (s *switchableSyncer) set(w *hourlyRotatingWriter) {
	s.mu.Lock()
	s.target = w
	s.mu.Unlock()
}

func (s *switchableSyncer) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.target
	s.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}

func (s *switchableSyncer) Sync() error {
	s.mu.Lock()
	w := s.target
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Sync()
}
