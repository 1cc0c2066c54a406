package maint

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	mu        sync.Mutex
	calls     int
	retention time.Duration
}

func (p *fakePruner) Prune(_ context.Context, retention time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.retention = retention
	return 3, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule("30 3 * * *")
	assert.NoError(t, err)

	_, err = ParseSchedule("@daily")
	assert.Error(t, err)

	_, err = ParseSchedule("not a cron")
	assert.Error(t, err)
}

func TestRunOncePrunesAndBacksUp(t *testing.T) {
	dir := t.TempDir()
	taskFile := filepath.Join(dir, "tasks.json")
	require.NoError(t, os.WriteFile(taskFile, []byte(`{"tasks":[]}`), 0o644))

	pruner := &fakePruner{}
	r, err := New(pruner, Options{
		StatsRetention: 48 * time.Hour,
		TaskFilePath:   taskFile,
		BackupDir:      filepath.Join(dir, "backups"),
	}, testLogger())
	require.NoError(t, err)

	r.RunOnce()

	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 48*time.Hour, pruner.retention)

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, "backups", entries[0].Name()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[]}`, string(data))
}

func TestRunOnceWithoutTaskFileIsQuiet(t *testing.T) {
	dir := t.TempDir()
	r, err := New(nil, Options{
		TaskFilePath: filepath.Join(dir, "absent.json"),
		BackupDir:    filepath.Join(dir, "backups"),
	}, testLogger())
	require.NoError(t, err)

	r.RunOnce()
	_, statErr := os.Stat(filepath.Join(dir, "backups"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTrimBackupsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	require.NoError(t, os.MkdirAll(backups, 0o755))
	stamps := []string{
		"tasks-20260101T000000Z.json",
		"tasks-20260102T000000Z.json",
		"tasks-20260103T000000Z.json",
	}
	for _, name := range stamps {
		require.NoError(t, os.WriteFile(filepath.Join(backups, name), []byte("{}"), 0o644))
	}

	r, err := New(nil, Options{BackupDir: backups, BackupKeep: 2}, testLogger())
	require.NoError(t, err)
	require.NoError(t, r.trimBackups())

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, stamps[1], entries[0].Name())
	assert.Equal(t, stamps[2], entries[1].Name())
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(nil, Options{Schedule: "@hourly"}, testLogger())
	assert.Error(t, err)
}
