package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"qadam_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchConfig_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("exam:\n  congrats_threshold: 70\n"), 0o644))

	reloaded := make(chan *config.Config, 1)
	load := func(d string) (*config.Config, error) {
		assert.Equal(t, dir, d)
		return &config.Config{Exam: config.ExamConfig{CongratsThreshold: 60}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, file, load, func(cfg *config.Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// 等待 watcher 就绪后再写入
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	writes := 0
	for {
		select {
		case cfg := <-reloaded:
			assert.Equal(t, 60.0, cfg.Exam.CongratsThreshold)
			cancel()
			require.NoError(t, <-done)
			return
		case <-tick.C:
			if writes >= 3 {
				continue
			}
			writes++
			require.NoError(t, os.WriteFile(file, []byte("exam:\n  congrats_threshold: 60\n"), 0o644))
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}
