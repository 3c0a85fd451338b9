// File: internal/catalog/catalog.go
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/kaptinlin/jsonrepair"
	"github.com/xkilldash9x/marketpilot/internal/jsonfile"
	"go.uber.org/zap"
)

// ErrItemNotFound is returned when an id is not in the catalog.
var ErrItemNotFound = errors.New("catalog item not found")

// minTokenLength is the shortest title token, in runes, that takes part in
// overlap matching. Shorter tokens ("the", "for", "new") match too much.
const minTokenLength = 4

// Catalog is the in-memory view of the catalog document. It is the only
// writer of that document.
type Catalog struct {
	logger   *zap.Logger
	path     string
	photoDir string
	repair   bool

	mu      sync.Mutex
	records []*record
	byID    map[int]*record
	items   []*record
	// dirty is set when a save failed, so the next update writes the
	// document even if its own status is unchanged.
	dirty bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPhotoDir resolves relative photo paths against dir.
func WithPhotoDir(dir string) Option {
	return func(c *Catalog) { c.photoDir = dir }
}

// WithRepair enables a syntactic repair attempt on a malformed document.
func WithRepair(enabled bool) Option {
	return func(c *Catalog) { c.repair = enabled }
}

// Open creates a Catalog for path and loads it.
func Open(path string, logger *zap.Logger, opts ...Option) *Catalog {
	c := &Catalog{
		logger: logger.Named("catalog"),
		path:   path,
		byID:   make(map[int]*record),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Load()
	return c
}

// Load (re)reads the document and returns the items it contains. A missing
// or malformed document yields an empty catalog; neither is an error.
func (c *Catalog) Load() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = nil
	c.dirty = false
	c.items = nil
	c.byID = make(map[int]*record)

	elements, err := c.readElements()
	if err != nil {
		c.logger.Warn("Catalog document unusable, continuing with an empty catalog.", zap.String("path", c.path), zap.Error(err))
		return nil
	}

	for idx, raw := range elements {
		rec, err := parseRecord(raw)
		if err == nil {
			if _, dup := c.byID[rec.item.ID]; dup {
				err = fmt.Errorf("duplicate id %d", rec.item.ID)
				rec = &record{raw: raw}
			}
		}
		c.records = append(c.records, rec)
		if err != nil {
			c.logger.Warn("Skipping catalog record; it is kept in the document unchanged.", zap.Int("index", idx), zap.Error(err))
			continue
		}
		if rec.item.Title == "" {
			c.logger.Debug("Catalog item has no title and will never be matched.", zap.Int("item_id", rec.item.ID))
		}
		c.byID[rec.item.ID] = rec
		c.items = append(c.items, rec)
	}

	c.logger.Info("Loaded catalog.", zap.String("path", c.path), zap.Int("items", len(c.items)), zap.Int("records", len(c.records)))
	return c.snapshot()
}

func (c *Catalog) readElements() ([]jsoniter.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Info("No catalog document found, starting empty.", zap.String("path", c.path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var elements []jsoniter.RawMessage
	decodeErr := jsonfile.Decode(data, &elements)
	if decodeErr == nil {
		return elements, nil
	}
	if !c.repair {
		return nil, decodeErr
	}

	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w (repair failed: %v)", decodeErr, err)
	}
	if err := jsonfile.Decode([]byte(repaired), &elements); err != nil {
		return nil, fmt.Errorf("%w (repaired document still invalid: %v)", decodeErr, err)
	}
	c.logger.Warn("Catalog document was malformed and has been repaired in memory; it is rewritten on the next status change.", zap.NamedError("decode_error", decodeErr))
	return elements, nil
}

// Items returns every conforming item in catalog order.
func (c *Catalog) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Catalog) snapshot() []Item {
	out := make([]Item, 0, len(c.items))
	for _, rec := range c.items {
		out = append(out, copyItem(rec.item))
	}
	return out
}

// FindByTitleOverlap returns the first item, in catalog order, whose title
// has a token of at least four runes that appears in text. Comparison is
// case-insensitive. There is no ranking: the first hit wins.
func (c *Catalog) FindByTitleOverlap(text string) (Item, bool) {
	haystack := strings.ToLower(text)
	if strings.TrimSpace(haystack) == "" {
		return Item{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.items {
		for _, token := range strings.Fields(strings.ToLower(rec.item.Title)) {
			if utf8.RuneCountInString(token) < minTokenLength {
				continue
			}
			if strings.Contains(haystack, token) {
				return copyItem(rec.item), true
			}
		}
	}
	return Item{}, false
}

// FindByID returns the item with the given id.
func (c *Catalog) FindByID(id int) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return copyItem(rec.item), true
}

// UpdateStatus sets the item's status and writes the whole document. The
// write is skipped when the status is unchanged and every earlier save
// succeeded. If the write fails the new status stays in memory and is
// written by the next update, including one that changes nothing.
func (c *Catalog) UpdateStatus(id int, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if rec.item.Status == status && !c.dirty {
		return nil
	}
	rec.setStatus(status)

	doc := make([]interface{}, 0, len(c.records))
	for _, r := range c.records {
		doc = append(doc, r.document())
	}
	if err := jsonfile.WriteAtomic(c.path, doc); err != nil {
		c.dirty = true
		c.logger.Error("Failed to persist catalog.", zap.Int("item_id", id), zap.String("status", string(status)), zap.Error(err))
		return err
	}
	c.dirty = false
	c.logger.Debug("Catalog item status updated.", zap.Int("item_id", id), zap.String("status", string(status)))
	return nil
}

// PhotoPaths resolves the item's photos to absolute paths. Relative paths
// are joined to the configured photo directory, or to the catalog
// document's directory when none is set.
func (c *Catalog) PhotoPaths(item Item) []string {
	base := c.photoDir
	if base == "" {
		base = filepath.Dir(c.path)
	}
	out := make([]string, 0, len(item.Photos))
	for _, p := range item.Photos {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	return out
}

// Path returns the location of the backing document.
func (c *Catalog) Path() string { return c.path }

func copyItem(in Item) Item {
	out := in
	if in.Price != nil {
		v := *in.Price
		out.Price = &v
	}
	if in.Bottom != nil {
		v := *in.Bottom
		out.Bottom = &v
	}
	out.Photos = append([]string(nil), in.Photos...)
	return out
}
