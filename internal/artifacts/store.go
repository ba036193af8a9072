// Package artifacts serves finished renders from the output directory.
package artifacts

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"subrender/internal/pkg/errors"
)

// ContentType is sent for every artifact.
const ContentType = "application/octet-stream"

// Store resolves artifact names inside a single directory. It never writes.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

// Resolve maps name to a path inside the root. Names that could escape the
// root are rejected as INVALID_PATH before the filesystem is consulted.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", errors.InvalidPath(name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errors.InvalidPath(name)
	}

	full := filepath.Join(s.root, name)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel != name || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.InvalidPath(name)
	}
	return full, nil
}

// Artifact is an open artifact file. Close must be called.
type Artifact struct {
	Name string
	Size int64
	File *os.File
}

func (a *Artifact) Close() error { return a.File.Close() }

// Open returns the named artifact or NOT_FOUND.
func (s *Store) Open(name string) (*Artifact, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("artifact", name)
		}
		return nil, errors.Wrap(err, "artifacts.open", "failed to open artifact")
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "artifacts.open", "failed to stat artifact")
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, errors.NotFound("artifact", name)
	}

	return &Artifact{Name: name, Size: st.Size(), File: f}, nil
}

// Serve writes the artifact as an attachment download.
func (s *Store) Serve(w http.ResponseWriter, r *http.Request, name string) error {
	a, err := s.Open(name)
	if err != nil {
		return err
	}
	defer a.Close()

	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(a.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}
	_, _ = io.Copy(w, a.File)
	return nil
}
