// Package scratch owns the directory request payloads are materialized in and
// periodically removes entries that outlived their request.
package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"compare/internal/infra/logging"
)

// Prefixes of entries created by this service. Nothing else is touched.
var ownedPrefixes = []string{"payload-", "pdfpages-"}

type Sweeper struct {
	dir    string
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
}

// Dir resolves the scratch directory, creating it if needed. An empty dir means
// the system temp directory.
func Dir(dir string) (string, error) {
	if dir == "" {
		return os.TempDir(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func NewSweeper(dir string, maxAge time.Duration) *Sweeper {
	return &Sweeper{dir: dir, maxAge: maxAge, now: time.Now}
}

// Start schedules Sweep on the standard five-field cron spec.
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep() }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	logging.Info("Scratch sweeper started", "dir", s.dir, "schedule", spec, "max_age", s.maxAge.String())
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep removes owned entries older than maxAge and returns how many it removed.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logging.Warn("Scratch sweep failed", "dir", s.dir, "error", err)
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !owned(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			logging.Warn("Scratch entry not removed", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logging.Info("Scratch sweep", "removed", removed)
	}
	return removed
}

func owned(name string) bool {
	for _, p := range ownedPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
