package repository

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const (
	mediaExt = ".mp4"
	partExt  = ".part" + mediaExt
)

// MediaRepository tracks merged files served under /media. Entries expire
// after ttl and their files are removed with them.
type MediaRepository struct {
	dir   string
	cache *cache.Cache
}

func NewMediaRepository(dir string, ttl time.Duration) (*MediaRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create media dir '%s'", dir)
	}

	// files left over from a previous run are unreachable; anything else in
	// the dir is not ours to remove
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read media dir '%s'", dir)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && ownedName(e.Name()) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}

	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(id string, v interface{}) {
		path, _ := v.(string)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Logger.Warnw("failed to remove expired media", "id", id, "error", err)
		}
	})

	return &MediaRepository{
		dir:   dir,
		cache: c,
	}, nil
}

// Reserve allocates an id and the final and temporary paths for a new file.
// Nothing is registered until Add is called.
func (r *MediaRepository) Reserve() (id, path, tmpPath string) {
	id = uuid.New().String()
	path = filepath.Join(r.dir, id+mediaExt)
	tmpPath = filepath.Join(r.dir, id+partExt)

	return id, path, tmpPath
}

func (r *MediaRepository) Add(id, path string) {
	r.cache.Set(id, path, cache.DefaultExpiration)
}

// Get accepts either the bare id or the served file name ("<id>.mp4").
func (r *MediaRepository) Get(name string) (string, bool) {
	id := strings.TrimSuffix(name, mediaExt)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}

	v, ok := r.cache.Get(id)
	if !ok {
		return "", false
	}

	path, ok := v.(string)
	if !ok {
		defer r.cache.Delete(id)
		return "", false
	}

	return path, true
}

// Purge drops every entry and its file.
func (r *MediaRepository) Purge() {
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}

// ownedName reports whether name has the shape of a file Reserve hands out.
func ownedName(name string) bool {
	var id string
	switch {
	case strings.HasSuffix(name, partExt):
		id = strings.TrimSuffix(name, partExt)
	case strings.HasSuffix(name, mediaExt):
		id = strings.TrimSuffix(name, mediaExt)
	default:
		return false
	}

	_, err := uuid.Parse(id)
	return err == nil
}
