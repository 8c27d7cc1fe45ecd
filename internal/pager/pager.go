// Package pager is the file-backed I/O layer spec.md treats as a black box:
// it reads and writes whole pages by index, and knows nothing about B+Tree
// structure. The one thing it does own beyond spec.md's literal contract is
// *when* a write becomes fsync-durable (SPEC_FULL.md §2.1) — every write is
// visible to a subsequent read immediately regardless of that policy.
package pager

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pagedtree/pagedtree/internal/carbonaware"
	"github.com/pagedtree/pagedtree/internal/page"
)

// Option configures a Pager at Init/Open time.
type Option func(*config)

type config struct {
	carbonAware      bool
	region           string
	provider         carbonaware.IntensityProvider
	deferredInterval time.Duration
	log              *zap.Logger
}

func defaultConfig() *config {
	return &config{
		carbonAware:      false,
		region:           "local",
		deferredInterval: 30 * time.Second,
		log:              zap.NewNop(),
	}
}

// WithCarbonAwareFsync enables deferred fsync scheduling driven by provider.
// When disabled (the default) every PutDirectory/PutLeaf/PutFree/PutMeta is fsynced before it
// returns, matching spec.md §5's durability boundary literally.
func WithCarbonAwareFsync(provider carbonaware.IntensityProvider, region string) Option {
	return func(c *config) {
		c.carbonAware = true
		c.provider = provider
		c.region = region
	}
}

// WithDeferredFlushInterval bounds how long a deferred fsync may be delayed.
func WithDeferredFlushInterval(d time.Duration) Option {
	return func(c *config) { c.deferredInterval = d }
}

// WithLogger attaches a zap.Logger; defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) { c.log = log }
}

// Pager owns exclusive access to one B+Tree's backing file (spec.md §5: no
// locking, because no concurrent mutation is permitted).
type Pager struct {
	file *os.File
	meta *page.MetadataPage

	cfg *config

	fsyncMu     sync.Mutex
	dirtySync   bool
	group       *errgroup.Group
	groupCancel context.CancelFunc
}

// Init creates a brand-new backing file at path and formats page 0 as a
// MetadataPage, page 1 as an empty root directory (whose sole child is page
// 2), and page 2 as an empty leaf, per spec.md §6.
func Init(path string, opts ...Option) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: create %s", path)
	}
	p := newPager(f, opts...)

	p.meta = &page.MetadataPage{
		NextFreePage:   page.NullIdx,
		RootPage:       1,
		DataHead:       2,
		DataTail:       2,
		PagesAllocated: 3,
		Depth:          1,
	}
	if err := p.writeAt(0, encodeMeta(p.meta)); err != nil {
		return nil, err
	}

	root := &page.DirectoryPage{Count: 0}
	root.Children[0] = 2
	if err := p.writeAt(1, encodeDir(root)); err != nil {
		return nil, err
	}

	leaf := &page.LeafPage{Count: 0, NextLeaf: page.NullIdx}
	if err := p.writeAt(2, encodeLeaf(leaf)); err != nil {
		return nil, err
	}

	if err := p.fsyncNow(); err != nil {
		return nil, err
	}
	p.startBackgroundFlush()
	return p, nil
}

// Open opens an existing backing file and loads page 0 as the tree's
// metadata.
func Open(path string, opts ...Option) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "pager: open %s", path)
	}
	p := newPager(f, opts...)

	buf, err := p.readAt(0)
	if err != nil {
		return nil, err
	}
	meta, err := page.DecodeMetadataPage(buf)
	if err != nil {
		return nil, errors.Wrap(err, "pager: decode metadata page")
	}
	p.meta = meta
	p.startBackgroundFlush()
	return p, nil
}

func newPager(f *os.File, opts ...Option) *Pager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.carbonAware && cfg.provider == nil {
		cfg.provider = carbonaware.NewMockProvider(cfg.region, cfg.log)
	}
	if !cfg.carbonAware {
		cfg.provider = carbonaware.AlwaysLow{Region: cfg.region}
	}
	return &Pager{file: f, cfg: cfg}
}

// Meta returns the in-memory metadata page. Callers (the btree core) mutate
// its fields directly and call PutMeta to persist the result; spec.md §4.6
// allows several such mutations to be coalesced into a single on-disk write.
func (p *Pager) Meta() *page.MetadataPage { return p.meta }

// PutMeta persists the in-memory metadata page to page 0.
func (p *Pager) PutMeta() error {
	if err := p.writeAt(0, encodeMeta(p.meta)); err != nil {
		return err
	}
	return p.scheduleFsync()
}

// GetDirectory reads and decodes the directory page at idx.
func (p *Pager) GetDirectory(idx page.PageIdx) (*page.DirectoryPage, error) {
	buf, err := p.readAt(idx)
	if err != nil {
		return nil, err
	}
	return page.DecodeDirectoryPage(buf)
}

// PutDirectory serializes and writes a directory page at idx.
func (p *Pager) PutDirectory(idx page.PageIdx, d *page.DirectoryPage) error {
	if err := p.writeAt(idx, encodeDir(d)); err != nil {
		return err
	}
	return p.scheduleFsync()
}

// GetLeaf reads and decodes the leaf page at idx.
func (p *Pager) GetLeaf(idx page.PageIdx) (*page.LeafPage, error) {
	buf, err := p.readAt(idx)
	if err != nil {
		return nil, err
	}
	return page.DecodeLeafPage(buf)
}

// PutLeaf serializes and writes a leaf page at idx.
func (p *Pager) PutLeaf(idx page.PageIdx, l *page.LeafPage) error {
	if err := p.writeAt(idx, encodeLeaf(l)); err != nil {
		return err
	}
	return p.scheduleFsync()
}

// GetFree reads and decodes the free-list page at idx.
func (p *Pager) GetFree(idx page.PageIdx) (*page.FreePage, error) {
	buf, err := p.readAt(idx)
	if err != nil {
		return nil, err
	}
	return page.DecodeFreePage(buf)
}

// PutFree serializes and writes a free-list page at idx.
func (p *Pager) PutFree(idx page.PageIdx, fr *page.FreePage) error {
	if err := p.writeAt(idx, encodeFree(fr)); err != nil {
		return err
	}
	return p.scheduleFsync()
}

// Extend grows the file to hold PagesAllocated pages, returning the index of
// the newly available last page. Callers must have already incremented
// PagesAllocated on Meta().
func (p *Pager) Extend() (page.PageIdx, error) {
	idx := page.PageIdx(p.meta.PagesAllocated - 1)
	required := int64(p.meta.PagesAllocated) * page.PageSize
	if err := p.file.Truncate(required); err != nil {
		return 0, errors.Wrapf(err, "pager: extend to page %d", idx)
	}
	return idx, nil
}

func (p *Pager) readAt(idx page.PageIdx) ([]byte, error) {
	buf := make([]byte, page.PageSize)
	if _, err := p.file.ReadAt(buf, int64(idx)*page.PageSize); err != nil {
		return nil, errors.Wrapf(err, "pager: read page %d", idx)
	}
	return buf, nil
}

func (p *Pager) writeAt(idx page.PageIdx, buf []byte) error {
	if _, err := p.file.WriteAt(buf, int64(idx)*page.PageSize); err != nil {
		return errors.Wrapf(err, "pager: write page %d", idx)
	}
	return nil
}

func encodeMeta(m *page.MetadataPage) []byte {
	buf := make([]byte, page.PageSize)
	m.Encode(buf)
	return buf
}

func encodeDir(d *page.DirectoryPage) []byte {
	buf := make([]byte, page.PageSize)
	d.Encode(buf)
	return buf
}

func encodeLeaf(l *page.LeafPage) []byte {
	buf := make([]byte, page.PageSize)
	l.Encode(buf)
	return buf
}

func encodeFree(f *page.FreePage) []byte {
	buf := make([]byte, page.PageSize)
	f.Encode(buf)
	return buf
}

// scheduleFsync fsyncs immediately when the carbon signal is low (or
// carbon-aware scheduling is off), and otherwise marks the file dirty for
// the background flush loop to pick up.
func (p *Pager) scheduleFsync() error {
	sig, err := p.cfg.provider.GetCurrentIntensity(p.cfg.region)
	if err != nil || sig.IsLow {
		return p.fsyncNow()
	}
	p.fsyncMu.Lock()
	p.dirtySync = true
	p.fsyncMu.Unlock()
	return nil
}

func (p *Pager) fsyncNow() error {
	p.fsyncMu.Lock()
	defer p.fsyncMu.Unlock()
	if err := p.file.Sync(); err != nil {
		return errors.Wrap(err, "pager: fsync")
	}
	p.dirtySync = false
	return nil
}

func (p *Pager) startBackgroundFlush() {
	ctx, cancel := context.WithCancel(context.Background())
	p.groupCancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	p.group = group
	group.Go(func() error {
		ticker := time.NewTicker(p.cfg.deferredInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.fsyncMu.Lock()
				dirty := p.dirtySync
				p.fsyncMu.Unlock()
				if dirty {
					if err := p.fsyncNow(); err != nil {
						p.cfg.log.Warn("pager: deferred fsync failed", zap.Error(err))
					}
				}
			}
		}
	})
}

// Close stops the background flush worker, performs a final fsync of any
// deferred writes, and closes the backing file.
func (p *Pager) Close() error {
	p.groupCancel()
	_ = p.group.Wait()
	if err := p.fsyncNow(); err != nil {
		return err
	}
	return p.file.Close()
}
