package logger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHourlyRotatingWriter_WritesToHourStampedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clustercore.log")

	w, err := newHourlyRotatingWriter(path)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "clustercore.log."+time.Now().Format("2006-01-02-15"))
}

func TestInit_IsIdempotentAndReloadsLevel(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	require.NoError(t, Init(Info, path))
	firstLogger := base

	require.NoError(t, Init(Debug, path))
	assert.Same(t, firstLogger, base, "second Init must not rebuild the logger")
	assert.Equal(t, Debug.zapLevel(), atomLevel.Level())
}

func TestInit_ReinitWithNewPathRedirectsFileOutput(t *testing.T) {
	resetForTest()
	dir1, dir2 := t.TempDir(), t.TempDir()
	path1 := filepath.Join(dir1, "first.log")
	path2 := filepath.Join(dir2, "second.log")

	require.NoError(t, Init(Info, path1))
	Info("startup", "writing to first path")
	require.NoError(t, base.Sync())

	entries1, err := os.ReadDir(dir1)
	require.NoError(t, err)
	require.Len(t, entries1, 1, "first Init opens exactly one file in dir1")

	require.NoError(t, Init(Info, path2))
	Info("reinit", "writing to second path")
	require.NoError(t, base.Sync())

	entries2, err := os.ReadDir(dir2)
	require.NoError(t, err)
	require.Len(t, entries2, 1, "reinit must redirect subsequent writes into dir2")

	content, err := os.ReadFile(filepath.Join(dir2, entries2[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "writing to second path")
	assert.NotContains(t, string(content), "writing to first path")
}

func TestInit_FirstCallWithEmptyPathThenLaterPathStillWritesFile(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	path := filepath.Join(dir, "deferred.log")

	require.NoError(t, Init(Info, ""))
	require.NoError(t, Init(Info, path))
	Info("later", "file target added on reinit")
	require.NoError(t, base.Sync())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "file core must start receiving writes once a path is supplied")
}

// resetForTest clears package-level state between tests; production code
// never needs this since Init's one-time setup runs once per process.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	once = sync.Once{}
	base = nil
	if rotator != nil {
		rotator.Close()
	}
	rotator = nil
	curPath = ""
	fileSync = &switchableSyncer{}
}
