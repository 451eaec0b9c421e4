package archive

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrArchive is returned when the archived image cannot be written to disk.
var ErrArchive = errors.New("failed to archive image")

const (
	timestampLayout = "20060102_150405"
	jpegQuality     = 90
)

// Archiver persists submitted images as JPEG files under a fixed uploads
// root. Paths are keyed by session id and second-granularity timestamp, so
// concurrent requests never contend on the same file; a same-second
// collision within one session overwrites (later write wins).
type Archiver struct {
	root string
}

// NewArchiver creates the uploads root if absent and returns an archiver
// writing into it. Safe to call concurrently; an existing root is not an error.
func NewArchiver(root string) (*Archiver, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create uploads root %s: %v", ErrArchive, root, err)
	}
	return &Archiver{root: root}, nil
}

// Archive writes the image to "<root>/<sessionID>_<YYYYMMDD_HHMMSS>.jpg" and
// returns that path as the stable reference stored with the event.
func (a *Archiver) Archive(img image.Image, sessionID string, ts time.Time) (string, error) {
	filename := fmt.Sprintf("%s_%s.jpg", sessionID, ts.Format(timestampLayout))
	path := filepath.Join(a.root, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	slog.Debug("archived image", "path", path, "session_id", sessionID)
	return path, nil
}

// Root returns the uploads root directory.
func (a *Archiver) Root() string {
	return a.root
}
