package scratch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestSweep_RemovesOnlyStaleOwnedEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "payload-old.png"), 2*time.Hour)
	touch(t, filepath.Join(dir, "payload-new.png"), time.Minute)
	touch(t, filepath.Join(dir, "someone-elses.png"), 5*time.Hour)

	pages := filepath.Join(dir, "pdfpages-123")
	require.NoError(t, os.Mkdir(pages, 0o755))
	touch(t, filepath.Join(pages, "page_1.png"), 0)
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(pages, old, old))

	s := NewSweeper(dir, time.Hour)
	assert.Equal(t, 2, s.Sweep())

	assert.NoFileExists(t, filepath.Join(dir, "payload-old.png"))
	assert.NoDirExists(t, pages)
	assert.FileExists(t, filepath.Join(dir, "payload-new.png"))
	assert.FileExists(t, filepath.Join(dir, "someone-elses.png"))
}

func TestSweep_MissingDir(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "gone"), time.Hour)
	assert.Zero(t, s.Sweep())
}

func TestStartStop(t *testing.T) {
	s := NewSweeper(t.TempDir(), time.Hour)
	assert.Error(t, s.Start("not a schedule"))
	require.NoError(t, s.Start("@every 1h"))
	s.Stop()
	s.Stop()
}

func TestDir(t *testing.T) {
	d, err := Dir("")
	require.NoError(t, err)
	assert.Equal(t, os.TempDir(), d)

	want := filepath.Join(t.TempDir(), "a", "b")
	d, err = Dir(want)
	require.NoError(t, err)
	assert.DirExists(t, d)
}
