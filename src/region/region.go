package region

import (
	"errors"
	"fmt"
)

const (
	// MinSelectWidth and MinSelectHeight are exclusive lower bounds for a drag selection.
	MinSelectWidth  = 80
	MinSelectHeight = 40
)

var (
	ErrInvalid  = errors.New("invalid region")
	ErrTooSmall = errors.New("region too small")
	ErrNotFound = errors.New("region not found")
)

// Region is a screen-space rectangle in virtual-screen pixels.
type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

func (r Region) Width() int  { return r.Right - r.Left }
func (r Region) Height() int { return r.Bottom - r.Top }

// Valid reports whether the rectangle has positive extent on both axes.
func (r Region) Valid() bool {
	return r.Left < r.Right && r.Top < r.Bottom
}

func (r Region) Validate() error {
	if !r.Valid() {
		return fmt.Errorf("%w: (%d,%d)-(%d,%d)", ErrInvalid, r.Left, r.Top, r.Right, r.Bottom)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// FromDrag turns two drag corners into a Region, rejecting selections that are
// not wider than MinSelectWidth and taller than MinSelectHeight.
func FromDrag(x1, y1, x2, y2 int) (Region, error) {
	r := Region{
		Left:   min(x1, x2),
		Top:    min(y1, y2),
		Right:  max(x1, x2),
		Bottom: max(y1, y2),
	}
	if r.Width() <= MinSelectWidth || r.Height() <= MinSelectHeight {
		return Region{}, fmt.Errorf("%w: %dx%d, need more than %dx%d", ErrTooSmall, r.Width(), r.Height(), MinSelectWidth, MinSelectHeight)
	}
	return r, nil
}

// Set is an ordered list of regions. Index 0 is the main region, the rest are
// extra regions in the order they were added.
type Set struct {
	regions []Region
}

func NewSet(main Region) Set {
	return Set{regions: []Region{main}}
}

func (s Set) Len() int { return len(s.regions) }

// Regions returns a copy of the regions in order.
func (s Set) Regions() []Region {
	out := make([]Region, len(s.regions))
	copy(out, s.regions)
	return out
}

// Main returns the first region, if any.
func (s Set) Main() (Region, bool) {
	if len(s.regions) == 0 {
		return Region{}, false
	}
	return s.regions[0], true
}

// Append adds r unless an identical rectangle is already present.
// Only exact matches count as duplicates; overlapping rectangles are kept.
func (s *Set) Append(r Region) bool {
	for _, existing := range s.regions {
		if existing == r {
			return false
		}
	}
	s.regions = append(s.regions, r)
	return true
}

// ReplaceMain discards every region and starts over with r as main.
func (s *Set) ReplaceMain(r Region) {
	s.regions = []Region{r}
}

// Label names the region at index i: "[main]" for 0, "[extra N]" after.
func Label(i int) string {
	if i == 0 {
		return "[main]"
	}
	return fmt.Sprintf("[extra %d]", i)
}
