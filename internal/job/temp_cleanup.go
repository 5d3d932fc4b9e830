package job

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// TempCleanupJob removes stale download and upload temp files left behind
// by crashed or interrupted requests.
type TempCleanupJob struct {
	dir    string
	maxAge time.Duration
}

func NewTempCleanupJob(dir string, maxAge time.Duration) *TempCleanupJob {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &TempCleanupJob{dir: dir, maxAge: maxAge}
}

func (j *TempCleanupJob) Name() string {
	return "temp_cleanup"
}

func (j *TempCleanupJob) Run(ctx context.Context) error {
	if j.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "docqa-") && !strings.HasPrefix(name, "upload-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("removed stale temp files", zap.Int("count", removed))
	}
	return nil
}
