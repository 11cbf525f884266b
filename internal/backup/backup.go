// Package backup writes dated snapshots of the store.
package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"jotihunt/internal/metrics"
)

// Snapshotter writes a consistent copy of the store to a file.
type Snapshotter interface {
	SnapshotTo(ctx context.Context, dest string) error
}

// Manager writes <location>/database_backup/backups/<dd-MM-yyyy>.db and
// refreshes <location>/database_backup/latest.db from it. A second backup on
// the same day replaces that day's file.
type Manager struct {
	store    Snapshotter
	location string
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(store Snapshotter, location string, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		location: location,
		logger:   logger.With("component", "backup"),
		now:      time.Now,
	}
}

func (m *Manager) dir() string {
	return filepath.Join(m.location, "database_backup", "backups")
}

// LatestPath is the copy of the most recent backup.
func (m *Manager) LatestPath() string {
	return filepath.Join(m.location, "database_backup", "latest.db")
}

// Run makes one backup. It satisfies scheduler.Job.
func (m *Manager) Run(ctx context.Context) error {
	_, err := m.Backup(ctx)
	return err
}

// Backup makes one backup and returns the path of the dated file.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	path, err := m.backup(ctx)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("failure").Inc()
		m.logger.Error("backup failed", "error", err)
		return "", err
	}
	metrics.BackupsTotal.WithLabelValues("success").Inc()
	m.logger.Info("backup created", "path", path, "latest", m.LatestPath())
	return path, nil
}

func (m *Manager) backup(ctx context.Context) (string, error) {
	dir := m.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dated := filepath.Join(dir, m.now().Format("02-01-2006")+".db")
	tmp := dated + ".tmp"
	if err := m.store.SnapshotTo(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dated); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move snapshot into place: %w", err)
	}

	if err := copyFile(dated, m.LatestPath()); err != nil {
		return "", fmt.Errorf("update latest backup: %w", err)
	}
	return dated, nil
}

// copyFile copies src over dst through a temporary file so dst is never
// partially written.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	tmp := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
