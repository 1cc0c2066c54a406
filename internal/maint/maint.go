// Package maint runs the daemon's housekeeping on a cron schedule:
// pruning old stats rows and backing up the task file.
package maint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule ensures the expression is a valid 5-field cron definition
// and returns the underlying schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if strings.HasPrefix(strings.TrimSpace(expr), "@") {
		return nil, fmt.Errorf("only 5-field cron expressions are supported")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

// Pruner is the stats store's retention hook.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Options configure the maintenance runner.
type Options struct {
	// Schedule is a 5-field cron expression; default is 03:30 daily.
	Schedule string
	// StatsRetention is how long tick rows are kept.
	StatsRetention time.Duration
	// TaskFilePath is the task file to back up; empty disables backups.
	TaskFilePath string
	// BackupDir receives timestamped task file copies.
	BackupDir string
	// BackupKeep is how many backups to retain; default 10.
	BackupKeep int
}

// Runner executes maintenance jobs on schedule.
type Runner struct {
	cron   *cron.Cron
	pruner Pruner
	opts   Options
	logger *slog.Logger
}

// New builds a runner. pruner may be nil when stats are disabled.
func New(pruner Pruner, opts Options, logger *slog.Logger) (*Runner, error) {
	if opts.Schedule == "" {
		opts.Schedule = "30 3 * * *"
	}
	if opts.StatsRetention <= 0 {
		opts.StatsRetention = 30 * 24 * time.Hour
	}
	if opts.BackupKeep <= 0 {
		opts.BackupKeep = 10
	}
	if _, err := ParseSchedule(opts.Schedule); err != nil {
		return nil, err
	}
	r := &Runner{
		cron:   cron.New(cron.WithParser(cronParser)),
		pruner: pruner,
		opts:   opts,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(opts.Schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule maintenance: %w", err)
	}
	return r, nil
}

// Start begins scheduled runs.
func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info("maintenance scheduled", "cron", r.opts.Schedule)
}

// Stop cancels scheduled runs and waits for an in-flight one.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce executes all maintenance jobs immediately.
func (r *Runner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if r.pruner != nil {
		n, err := r.pruner.Prune(ctx, r.opts.StatsRetention)
		if err != nil {
			r.logger.Error("stats prune failed", "error", err)
		} else if n > 0 {
			r.logger.Info("stats pruned", "rows", n)
		}
	}
	if r.opts.TaskFilePath != "" && r.opts.BackupDir != "" {
		if err := r.backupTasks(); err != nil {
			r.logger.Error("task backup failed", "error", err)
		}
	}
}

// backupTasks copies the task file into the backup directory with a
// timestamped name and trims old copies.
func (r *Runner) backupTasks() error {
	src, err := os.Open(r.opts.TaskFilePath)
	if os.IsNotExist(err) {
		return nil // nothing to back up yet
	}
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(r.opts.BackupDir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("tasks-%s.json", time.Now().UTC().Format("20060102T150405Z"))
	dst, err := os.Create(filepath.Join(r.opts.BackupDir, name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return r.trimBackups()
}

func (r *Runner) trimBackups() error {
	entries, err := os.ReadDir(r.opts.BackupDir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "tasks-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// Timestamped names sort chronologically.
	sort.Strings(names)
	for len(names) > r.opts.BackupKeep {
		if err := os.Remove(filepath.Join(r.opts.BackupDir, names[0])); err != nil {
			return err
		}
		names = names[1:]
	}
	return nil
}
