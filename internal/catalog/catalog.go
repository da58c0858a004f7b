// Package catalog holds the immutable alias→model mapping loaded from
// configuration and the memory-footprint estimation rules used by the
// admission policy.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/vibe-homelab/vision-insight-api/internal/config"
)

// Kind is the tagged variant distinguishing which worker binary an entry
// spawns. It replaces runtime branching on a raw type string with a closed
// set of values checked once at catalog construction.
type Kind string

const (
	KindVLM       Kind = "vlm"
	KindDiffusion Kind = "diffusion"
)

// Entry is one resolved catalog entry.
type Entry struct {
	Alias  string
	Kind   Kind
	Path   string
	Params map[string]any
}

// ErrNotFound is returned by Lookup for an unknown alias.
var ErrNotFound = errors.New("model alias not found")

// Catalog is an immutable alias→Entry map built once at startup.
type Catalog struct {
	entries map[string]Entry
	order   []string
}

// New builds a Catalog from parsed configuration. The returned Catalog is
// never mutated afterward; reloading configuration means constructing a new
// Catalog and swapping references at the call sites that hold one.
func New(models map[string]config.ModelConfig) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(models))}
	for alias, m := range models {
		kind := KindVLM
		if m.Type == string(KindDiffusion) {
			kind = KindDiffusion
		}
		c.entries[alias] = Entry{
			Alias:  alias,
			Kind:   kind,
			Path:   m.Path,
			Params: m.Params,
		}
		c.order = append(c.order, alias)
	}
	sort.Strings(c.order)
	return c
}

// Lookup returns the entry for alias, or ErrNotFound.
func (c *Catalog) Lookup(alias string) (Entry, error) {
	e, ok := c.entries[alias]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// List returns every configured alias, sorted alphabetically so callers that
// pick "the first" entry (e.g. the analyze-alias fallback) get a stable
// answer across runs rather than one at the mercy of map iteration order.
func (c *Catalog) List() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Has reports whether alias is configured.
func (c *Catalog) Has(alias string) bool {
	_, ok := c.entries[alias]
	return ok
}

// IsVLM reports whether alias is configured and is a VLM-kind entry.
func (c *Catalog) IsVLM(alias string) bool {
	e, ok := c.entries[alias]
	return ok && e.Kind == KindVLM
}

// knownMemoryGB is the built-in exact-match table of known model paths,
// carried over from the reference memory-estimation table including the
// CUDA-diffusion entries the distilled estimation rules omit.
var knownMemoryGB = map[string]float64{
	"mlx-community/moondream2":                   1.5,
	"mlx-community/Qwen2.5-VL-3B-Instruct-4bit":  2.5,
	"mlx-community/Qwen2.5-VL-7B-Instruct-4bit":  4.5,
	"mlx-community/Qwen2.5-VL-14B-Instruct-4bit": 8.0,
	"mlx-community/FLUX.1-schnell-4bit-mlx":      6.0,
	"mlx-community/FLUX.1-dev-4bit-mlx":          12.0,
	"Qwen/Qwen-Image-2512":                       20.0,
}

const (
	defaultVLM           = 3.0
	defaultDiffusion     = 8.0
	defaultCUDADiffusion = 20.0
)

// EstimateMemoryGB implements the three-tier estimation rule: exact match,
// then substring inference on parameter-count tokens in the path, then a
// type default.
func EstimateMemoryGB(e Entry) float64 {
	if gb, ok := knownMemoryGB[e.Path]; ok {
		return gb
	}

	pathLower := strings.ToLower(e.Path)
	switch {
	case strings.Contains(pathLower, "14b"):
		return 8.0
	case strings.Contains(pathLower, "7b"):
		return 4.5
	case strings.Contains(pathLower, "3b"):
		return 2.5
	case strings.Contains(pathLower, "2b"), strings.Contains(pathLower, "1b"):
		return 1.5
	}

	if e.Kind == KindDiffusion {
		if strings.Contains(pathLower, "cuda") || strings.Contains(pathLower, "qwen-image") {
			return defaultCUDADiffusion
		}
		return defaultDiffusion
	}
	return defaultVLM
}
