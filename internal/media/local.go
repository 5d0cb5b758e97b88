package media

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// LocalStore keeps objects in a directory served under a URL prefix.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore prepares dir and returns a store whose references start with baseURL.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, eris.New("media directory is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, eris.New("media base url is required")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "creating media directory %s", dir)
	}

	return &LocalStore{dir: dir, baseURL: baseURL}, nil
}

// Dir is the directory objects are written to.
func (s *LocalStore) Dir() string { return s.dir }

// BaseURL is the prefix of every reference this store returns.
func (s *LocalStore) BaseURL() string { return s.baseURL }

func (s *LocalStore) Put(ctx context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "storing object")
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", eris.Wrapf(err, "creating directory for %s", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", eris.Wrapf(err, "creating temp file for %s", key)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", eris.Wrapf(err, "writing %s", key)
	}
	if err := tmp.Close(); err != nil {
		return "", eris.Wrapf(err, "closing %s", key)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", eris.Wrapf(err, "moving %s into place", key)
	}

	return s.baseURL + "/" + key, nil
}

func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	key, ok := strings.CutPrefix(ref, s.baseURL+"/")
	if !ok {
		return eris.Errorf("reference %q is outside %s", ref, s.baseURL)
	}

	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "deleting object")
	}

	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "deleting %s", key)
	}
	return nil
}

func (s *LocalStore) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned != "/"+key {
		return "", eris.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
