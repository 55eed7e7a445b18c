package dicomsrc

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gradienthealth/dicom"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region loader
type cacheKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Loader reads DICOM headers from disk. Parsed headers are cached by path,
// size and modification time, so reloading a folder only parses new or
// changed files.
type Loader struct {
	cache    *lru.Cache[cacheKey, Header]
	parallel int
	logger   *zap.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithParallel bounds how many files are parsed at once.
func WithParallel(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.parallel = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logging.OrNop(lg) }
}

// NewLoader creates a loader caching up to cacheSize headers.
func NewLoader(cacheSize int, opts ...LoaderOption) (*Loader, error) {
	cache, err := lru.New[cacheKey, Header](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("header cache: %w", err)
	}
	l := &Loader{cache: cache, parallel: 4, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ReadHeader parses the header of one file, skipping pixel data.
func (l *Loader) ReadHeader(path string) (Header, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Header{}, fmt.Errorf("stat %s: %w", path, err)
	}
	key := cacheKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if h, ok := l.cache.Get(key); ok {
		return h, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := dicom.NewParser(f, info.Size(), nil)
	if err != nil {
		return Header{}, fmt.Errorf("parse %s: %w", path, err)
	}
	ds, err := p.Parse(dicom.ParseOptions{DropPixelData: true})
	if err != nil {
		return Header{}, fmt.Errorf("parse %s: %w", path, err)
	}
	h, err := HeaderFromDataSet(ds)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	h.Path = path
	l.cache.Add(key, h)
	return h, nil
}

// LoadDir parses every file under dir and groups them into a snapshot.
// Files that are not DICOM, or lack study/series UIDs, are skipped.
func (l *Loader) LoadDir(ctx context.Context, dir string) (session.Snapshot, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("walk %s: %w", dir, err)
	}

	var (
		mu      sync.Mutex
		headers []Header
		skipped int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := l.ReadHeader(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped++
				l.logger.Debug("skipping file", zap.String("path", path), zap.Error(err))
				return nil
			}
			headers = append(headers, h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return session.Snapshot{}, fmt.Errorf("load %s: %w", dir, err)
	}

	snap := Group(headers)
	l.logger.Debug("loaded dicom folder",
		zap.String("dir", dir),
		zap.Int("instances", len(headers)),
		zap.Int("skipped", skipped),
		zap.Int("studies", len(snap.Studies)),
	)
	return snap, nil
}

// #endregion loader
