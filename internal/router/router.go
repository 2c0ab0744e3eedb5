// Package router maps integer keys to the storage-unit paths that hold them.
//
// Routers are pure: Path never touches the filesystem, and two calls with the
// same key always return the same cleaned absolute path. Layout validation
// happens once, at construction.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

var (
	// ErrInvalidLayout is returned when router parameters cannot describe a layout.
	ErrInvalidLayout = errors.New("router: invalid layout")

	// ErrUnknownRouter is returned for a router kind missing from the lookup table.
	ErrUnknownRouter = errors.New("router: unknown router")
)

// Router maps keys to unit paths under a root directory.
type Router interface {
	// Kind is the stable identifier persisted in store configs.
	Kind() string
	// Root is the absolute root directory.
	Root() string
	// Ext is the unit extension appended to every path.
	Ext() string
	// Path returns the unit path holding key.
	Path(key int64) string
	// Params returns the JSON-serializable layout parameters.
	Params() any
}

// Factory builds a router from persisted parameters.
type Factory func(root string, params json.RawMessage, ext string) (Router, error)

var factories = map[string]Factory{
	KindRange: func(root string, raw json.RawMessage, ext string) (Router, error) {
		var p Params
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return NewRange(root, p, ext)
	},
	KindDigits: func(root string, raw json.RawMessage, ext string) (Router, error) {
		var p DigitsParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return NewDigits(root, p, ext)
	},
}

// New resolves kind through the lookup table and builds the router.
func New(kind, root string, params json.RawMessage, ext string) (Router, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRouter, kind)
	}
	return f(root, params, ext)
}

// Kinds lists the registered router kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidLayout)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return nil
}

func absRoot(root string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: empty root", ErrInvalidLayout)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", root, err)
	}
	return abs, nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
