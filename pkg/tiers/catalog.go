package tiers

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Config selects the catalog document. An empty path uses the embedded catalog.
type Config struct {
	Path string `env:"TIERS_CATALOG_PATH"`
}

// Entry is a single price mapping.
type Entry struct {
	PriceID string       `yaml:"price_id"`
	Tier    Tier         `yaml:"tier"`
	Cycle   BillingCycle `yaml:"cycle"`
}

type document struct {
	Prices []Entry `yaml:"prices"`
}

// Catalog maps provider price ids to tiers. It is read-only after construction.
type Catalog struct {
	entries map[string]Entry
}

// New builds a catalog from entries, rejecting invalid or duplicate mappings.
func New(entries ...Entry) (*Catalog, error) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		e.PriceID = strings.TrimSpace(e.PriceID)
		if e.PriceID == "" {
			return nil, errors.Join(ErrInvalidCatalog, errors.New("empty price id"))
		}
		if !e.Tier.Paid() {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("price %s maps to non-paid tier %q", e.PriceID, e.Tier))
		}
		if !e.Cycle.Valid() {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("price %s has invalid billing cycle %q", e.PriceID, e.Cycle))
		}
		if _, exists := m[e.PriceID]; exists {
			return nil, errors.Join(ErrDuplicatePriceID, fmt.Errorf("price %s", e.PriceID))
		}
		m[e.PriceID] = e
	}
	return &Catalog{entries: m}, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return New(doc.Prices...)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default that panics on error.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("tiers: embedded catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}
	return Parse(data)
}

// Load returns the catalog selected by cfg.
func Load(cfg Config) (*Catalog, error) {
	if cfg.Path == "" {
		return Default()
	}
	return LoadFile(cfg.Path)
}

// TierForPriceID looks up a price id. Unknown ids report false.
func (c *Catalog) TierForPriceID(priceID string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[priceID]
	return e, ok
}

// Len returns the number of mapped prices.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
