package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go-passport-reader/models"

	"github.com/google/uuid"
)

const (
	KindUpload = "upload"
	KindROI    = "roi"
)

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// UploadStore owns the upload directory. Every file it creates is named
// after a fresh uuid, so client supplied names never reach the filesystem.
type UploadStore struct {
	dir      string
	registry UploadRegistry
}

func NewUploadStore(dir string, registry UploadRegistry) (*UploadStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &UploadStore{dir: dir, registry: registry}, nil
}

func (s *UploadStore) Dir() string {
	return s.dir
}

// Artifact is a registered temporary file. Remove must be called once the
// request that created it is done.
type Artifact struct {
	models.Upload
	store *UploadStore
}

// Create registers a new empty artifact and returns it. The file itself is
// created by the caller at artifact.Path.
func (s *UploadStore) Create(kind, ext string) (*Artifact, error) {
	id := uuid.NewString()
	artifact := &Artifact{
		Upload: models.Upload{
			Id:        id,
			Path:      filepath.Join(s.dir, id+ext),
			Kind:      kind,
			CreatedAt: time.Now(),
		},
		store: s,
	}
	if err := s.registry.Register(artifact.Upload); err != nil {
		return nil, fmt.Errorf("failed to register %s artifact: %w", kind, err)
	}
	slog.Debug("Registered artifact", "upload_id", id, "kind", kind)
	return artifact, nil
}

// Save copies an uploaded file into the store.
func (s *UploadStore) Save(src io.Reader, filename string) (*Artifact, error) {
	artifact, err := s.Create(KindUpload, SafeExtension(filename))
	if err != nil {
		return nil, err
	}

	if err := writeExclusive(artifact.Path, src); err != nil {
		artifact.Remove()
		return nil, err
	}
	return artifact, nil
}

func writeExclusive(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file and releases the registration. Safe to call when
// the file was never written.
func (a *Artifact) Remove() {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to remove artifact", "upload_id", a.Id, "path", a.Path, "error", err)
	}
	if err := a.store.registry.Release(a.Id); err != nil {
		slog.Warn("failed to release artifact", "upload_id", a.Id, "error", err)
	}
	slog.Debug("Artifact removed", "upload_id", a.Id, "kind", a.Kind)
}

// SafeExtension returns the lower-cased extension of a client file name when
// it is short and alphanumeric, and "" otherwise.
func SafeExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if !extensionPattern.MatchString(ext) {
		return ""
	}
	return ext
}
