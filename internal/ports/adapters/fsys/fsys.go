package fsys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/forPelevin/vidstamp/internal/domain/naming"
)

// Tests swap this to simulate rename failures.
var renameFunc = os.Rename

var ErrTargetExists = errors.New("rename target already exists")

// CrossDeviceError is a rename that failed with EXDEV. Files are never
// copied across file systems.
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("rename %q -> %q crosses file systems: %v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// ListMP4 returns the .mp4 files directly inside dir, sorted by name.
func ListMP4(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), naming.Ext) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}

type Renamer struct {
	apply bool
	log   *zap.Logger

	// mu serialises the existence check and the rename across workers.
	mu      sync.Mutex
	claimed map[string]struct{}
}

func NewRenamer(apply bool, log *zap.Logger) *Renamer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renamer{apply: apply, log: log, claimed: make(map[string]struct{})}
}

func (r *Renamer) DryRun() bool { return !r.apply }

// Rename moves src to dst, refusing to replace an existing file. In dry-run
// it only logs the intended rename.
func (r *Renamer) Rename(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		r.log.Info("already named", zap.String("file", src))
		return nil
	}
	if !r.apply {
		r.log.Info("would rename", zap.String("file", src), zap.String("target", dst))
		return nil
	}

	key := filepath.Clean(dst)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.claimed[key]; ok {
		return fmt.Errorf("%w: %s", ErrTargetExists, dst)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrTargetExists, dst)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat target: %w", err)
	}

	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return fmt.Errorf("rename: %w", err)
	}
	r.claimed[key] = struct{}{}
	r.log.Info("renamed", zap.String("file", src), zap.String("target", dst))
	return nil
}
