package router

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// KindRange identifies the contiguous-range router.
const KindRange = "range"

// Params is the layout of a range router.
type Params struct {
	UnitSize      int64 `json:"unit_size"`      // records per unit
	SubfolderSize int64 `json:"subfolder_size"` // units per subfolder, 0 = no subfolders
	FirstKey      int64 `json:"first_key"`      // key stored at index 0 of unit 0
}

// Range routes contiguous key ranges of UnitSize keys to one unit each.
//
// Example: with UnitSize=10, SubfolderSize=2, FirstKey=1, key 22 lands in
// file index 2, which is unit 0 of subfolder 1: <root>/1/0<ext>.
type Range struct {
	root   string
	ext    string
	params Params
}

// NewRange validates p and returns a range router rooted at root.
func NewRange(root string, p Params, ext string) (*Range, error) {
	if p.UnitSize <= 0 {
		return nil, fmt.Errorf("%w: unit_size must be > 0, got %d", ErrInvalidLayout, p.UnitSize)
	}
	if p.SubfolderSize < 0 {
		return nil, fmt.Errorf("%w: subfolder_size must be >= 0, got %d", ErrInvalidLayout, p.SubfolderSize)
	}
	abs, err := absRoot(root)
	if err != nil {
		return nil, err
	}
	return &Range{root: abs, ext: ext, params: p}, nil
}

func (r *Range) Kind() string { return KindRange }
func (r *Range) Root() string { return r.root }
func (r *Range) Ext() string  { return r.ext }
func (r *Range) Params() any  { return r.params }

// Layout returns the typed layout parameters.
func (r *Range) Layout() Params { return r.params }

// FileIndex returns the zero-based unit index for key. Keys below FirstKey
// yield negative indices.
func (r *Range) FileIndex(key int64) int64 {
	return floorDiv(key-r.params.FirstKey, r.params.UnitSize)
}

// Path returns the unit path for key.
func (r *Range) Path(key int64) string {
	idx := r.FileIndex(key)
	if r.params.SubfolderSize == 0 {
		return filepath.Join(r.root, strconv.FormatInt(idx, 10)+r.ext)
	}
	sub := floorDiv(idx, r.params.SubfolderSize)
	local := idx - sub*r.params.SubfolderSize
	return filepath.Join(r.root, strconv.FormatInt(sub, 10), strconv.FormatInt(local, 10)+r.ext)
}
