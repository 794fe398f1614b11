package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// ImageLoader warms one image.
type ImageLoader interface {
	Load(ctx context.Context, url string) error
}

// ImageLoaderFunc adapts a function to ImageLoader.
type ImageLoaderFunc func(ctx context.Context, url string) error

// Load calls f.
func (f ImageLoaderFunc) Load(ctx context.Context, url string) error { return f(ctx, url) }

// HTTPImageLoader checks images with a HEAD request.
type HTTPImageLoader struct {
	Client *http.Client
}

// Load implements ImageLoader.
func (h HTTPImageLoader) Load(ctx context.Context, url string) error {
	c := h.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s returned %d", ErrImageUnavailable, url, resp.StatusCode)
	}
	return nil
}

// Preloader loads each image URL at most once per session and reports
// the ones that fail.
type Preloader struct {
	loader   ImageLoader
	reporter AssetReporter
	limit    int
	now      func() time.Time
	logger   logger.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	flight singleflight.Group
}

// PreloaderOption configures a Preloader.
type PreloaderOption func(*Preloader)

// WithAssetReporter sends failures to r.
func WithAssetReporter(r AssetReporter) PreloaderOption {
	return func(p *Preloader) { p.reporter = r }
}

// WithPreloadConcurrency bounds parallel loads.
func WithPreloadConcurrency(n int) PreloaderOption {
	return func(p *Preloader) {
		if n > 0 {
			p.limit = n
		}
	}
}

// NewPreloader creates a preloader over loader.
func NewPreloader(loader ImageLoader, opts ...PreloaderOption) *Preloader {
	p := &Preloader{
		loader: loader,
		limit:  4,
		now:    time.Now,
		seen:   make(map[string]struct{}),
		logger: logger.Named("preloader"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Seen reports whether url was already preloaded.
func (p *Preloader) Seen(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[url]
	return ok
}

// Preload warms the images of profiles. It returns how many URLs were
// loaded by this call.
func (p *Preloader) Preload(ctx context.Context, profiles []model.Profile) int {
	if p == nil || p.loader == nil {
		return 0
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	var mu sync.Mutex
	loaded := 0
	queued := make(map[string]struct{}, len(profiles))
	for _, prof := range profiles {
		if prof.ImageURL == "" || p.Seen(prof.ImageURL) {
			continue
		}
		if _, dup := queued[prof.ImageURL]; dup {
			continue
		}
		queued[prof.ImageURL] = struct{}{}
		g.Go(func() error {
			_, err, _ := p.flight.Do(prof.ImageURL, func() (any, error) {
				if err := p.loader.Load(gctx, prof.ImageURL); err != nil {
					if gctx.Err() == nil {
						p.report(ctx, prof, err)
					}
					return nil, err
				}
				p.mu.Lock()
				p.seen[prof.ImageURL] = struct{}{}
				p.mu.Unlock()
				return nil, nil
			})
			if err == nil {
				mu.Lock()
				loaded++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return loaded
}

func (p *Preloader) report(ctx context.Context, prof model.Profile, err error) {
	p.mu.Lock()
	p.seen[prof.ImageURL] = struct{}{}
	p.mu.Unlock()

	metrics.RecordMissingAsset("preload")
	p.logger.Warn(ctx, "image preload failed",
		logger.String("profile_id", prof.ID),
		logger.String("url", prof.ImageURL),
		logger.Error(err),
	)
	if p.reporter == nil {
		return
	}
	report := model.AssetReport{
		Reason:    "image-error",
		Timestamp: p.now().UTC().Format(time.RFC3339),
		Person: map[string]any{
			"id":       prof.ID,
			"name":     prof.Name,
			"imageUrl": prof.ImageURL,
		},
		Extras: map[string]any{"stage": "preload"},
	}
	if rerr := p.reporter.ReportMissingAsset(ctx, report); rerr != nil {
		p.logger.Debug(ctx, "missing image report failed", logger.Error(rerr))
	}
}
