package router

import (
	"fmt"
	"path/filepath"
)

// KindDigits identifies the decimal-digit router.
const KindDigits = "digits"

// DigitsParams is the layout of a digits router.
type DigitsParams struct {
	Digits          int   `json:"digits"`           // minimum width of the zero-padded key
	SubfolderDigits []int `json:"subfolder_digits"` // widths of each path level
}

// Digits routes keys by slicing their zero-padded decimal form.
//
// With Digits=7 and SubfolderDigits=[2,2], key 1234567 is "1234567": the
// first group takes everything before the last five characters ("12") and
// the second takes the next two ("34"), giving <root>/12/34<ext>. The
// remaining three digits select the record inside the unit. Keys wider than
// Digits spill into the first group. With no groups every key maps to
// <root>/data<ext>.
type Digits struct {
	root   string
	ext    string
	params DigitsParams
	cuts   []int // offsets from the end of the padded key, e.g. [5, 3]
}

// NewDigits validates p and returns a digits router rooted at root.
func NewDigits(root string, p DigitsParams, ext string) (*Digits, error) {
	if p.Digits <= 0 {
		return nil, fmt.Errorf("%w: digits must be > 0, got %d", ErrInvalidLayout, p.Digits)
	}
	sum := 0
	cuts := make([]int, 0, len(p.SubfolderDigits))
	for _, w := range p.SubfolderDigits {
		if w <= 0 {
			return nil, fmt.Errorf("%w: subfolder widths must be > 0, got %v", ErrInvalidLayout, p.SubfolderDigits)
		}
		sum += w
		cuts = append(cuts, p.Digits-sum)
	}
	if len(p.SubfolderDigits) > 0 && sum >= p.Digits {
		return nil, fmt.Errorf("%w: subfolder widths %v leave no digits for records (digits=%d)",
			ErrInvalidLayout, p.SubfolderDigits, p.Digits)
	}
	abs, err := absRoot(root)
	if err != nil {
		return nil, err
	}
	if p.SubfolderDigits == nil {
		p.SubfolderDigits = []int{}
	}
	return &Digits{root: abs, ext: ext, params: p, cuts: cuts}, nil
}

func (d *Digits) Kind() string { return KindDigits }
func (d *Digits) Root() string { return d.root }
func (d *Digits) Ext() string  { return d.ext }
func (d *Digits) Params() any  { return d.params }

// Path returns the unit path for key.
func (d *Digits) Path(key int64) string {
	if len(d.cuts) == 0 {
		return filepath.Join(d.root, "data"+d.ext)
	}
	s := fmt.Sprintf("%0*d", d.params.Digits, key)
	n := len(s)
	parts := make([]string, 0, len(d.cuts)+1)
	parts = append(parts, d.root, s[:n-d.cuts[0]])
	for i := 1; i < len(d.cuts); i++ {
		parts = append(parts, s[n-d.cuts[i-1]:n-d.cuts[i]])
	}
	parts[len(parts)-1] += d.ext
	return filepath.Join(parts...)
}
