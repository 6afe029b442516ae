package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sweeper removes artifacts that outlived their request, which only happens
// when the process died mid-request. Files that are still registered or
// younger than minAge are left alone, as are files the store did not name.
type Sweeper struct {
	dir      string
	registry UploadRegistry
	minAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewSweeper(dir string, registry UploadRegistry, minAge, interval time.Duration) *Sweeper {
	return &Sweeper{
		dir:      dir,
		registry: registry,
		minAge:   minAge,
		interval: interval,
		now:      time.Now,
	}
}

// Sweep runs a single pass and returns the number of removed files.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload dir: %w", err)
	}

	removed := 0
	cutoff := s.now().Add(-s.minAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		id, _, _ := strings.Cut(name, ".")
		if _, err := uuid.Parse(id); err != nil {
			slog.Debug("Sweeper skipping foreign file", "name", name)
			continue
		}

		active, err := s.registry.IsActive(id)
		if err != nil {
			return removed, fmt.Errorf("failed to check upload %s: %w", id, err)
		}
		if active {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("failed to remove orphaned artifact", "name", name, "error", err)
			continue
		}
		slog.Info("Removed orphaned artifact", "upload_id", id, "age", s.now().Sub(info.ModTime()).String())
		removed++
	}
	return removed, nil
}

// Run sweeps once and then every interval until ctx is done. A zero interval
// means a single pass.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.Sweep(); err != nil {
		slog.Error("upload sweep failed", "error", err)
	}
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				slog.Error("upload sweep failed", "error", err)
			}
		}
	}
}
