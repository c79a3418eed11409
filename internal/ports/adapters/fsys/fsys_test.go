package fsys

import (
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListMP4(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.mp4"))
	touch(t, filepath.Join(dir, "a.mp4"))
	touch(t, filepath.Join(dir, "upper.MP4"))
	touch(t, filepath.Join(dir, "notes.txt"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.mp4"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	touch(t, filepath.Join(dir, "sub", "nested.mp4"))

	got, err := ListMP4(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}, got)
}

func TestListMP4_MissingDir(t *testing.T) {
	_, err := ListMP4(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRenamer_DryRunLeavesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	dst := filepath.Join(dir, "1__2.mp4")
	touch(t, src)

	r := NewRenamer(false, nil)
	require.True(t, r.DryRun())
	require.NoError(t, r.Rename(src, dst))

	_, err := os.Stat(src)
	require.NoError(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestRenamer_Apply(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	dst := filepath.Join(dir, "1__2.mp4")
	touch(t, src)

	r := NewRenamer(true, nil)
	require.False(t, r.DryRun())
	require.NoError(t, r.Rename(src, dst))

	_, err := os.Stat(dst)
	require.NoError(t, err)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestRenamer_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	dst := filepath.Join(dir, "1__2.mp4")
	touch(t, src)
	touch(t, dst)

	err := NewRenamer(true, nil).Rename(src, dst)
	require.ErrorIs(t, err, ErrTargetExists)
	_, statErr := os.Stat(src)
	require.NoError(t, statErr)
}

func TestRenamer_SameNameIsNoop(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "1__2.mp4")
	touch(t, src)

	require.NoError(t, NewRenamer(true, nil).Rename(src, src))
	_, err := os.Stat(src)
	require.NoError(t, err)
}

func TestRenamer_CrossDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.mp4")
	touch(t, src)

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	err := NewRenamer(true, nil).Rename(src, filepath.Join(dir, "1__2.mp4"))
	require.Error(t, err)
	if isEXDEV(&os.LinkError{Err: syscall.EXDEV}) {
		var ce *CrossDeviceError
		assert.ErrorAs(t, err, &ce)
	}
}

func TestRenamer_ConcurrentSameTarget(t *testing.T) {
	dir := t.TempDir()
	srcs := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}
	for _, s := range srcs {
		touch(t, s)
	}
	dst := filepath.Join(dir, "1__2.mp4")

	// Widen the window between the existence check and the rename.
	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		time.Sleep(20 * time.Millisecond)
		return old(oldpath, newpath)
	}
	defer func() { renameFunc = old }()

	r := NewRenamer(true, nil)
	errs := make([]error, len(srcs))
	var wg sync.WaitGroup
	for i, s := range srcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.Rename(s, dst)
		}()
	}
	wg.Wait()

	refused := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrTargetExists)
			refused++
		}
	}
	assert.Equal(t, 1, refused, "errs: %v", errs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one renamed, one left in place")
	_, err = os.Stat(dst)
	require.NoError(t, err)
}

func TestRenamer_ClaimSurvivesTargetRemoval(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	dst := filepath.Join(dir, "1__2.mp4")
	touch(t, a)
	touch(t, b)

	r := NewRenamer(true, nil)
	require.NoError(t, r.Rename(a, dst))
	require.NoError(t, os.Remove(dst))

	require.ErrorIs(t, r.Rename(b, dst), ErrTargetExists)
}
