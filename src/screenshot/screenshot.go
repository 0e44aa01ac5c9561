package screenshot

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"

	"screen-translate/src/region"
)

// Capturer grabs screen pixels. A nil rectangle means the whole virtual screen.
type Capturer struct{}

func New() Capturer { return Capturer{} }

func (Capturer) Capture(r *region.Region) (image.Image, error) {
	if r == nil {
		return CaptureScreen()
	}
	return CaptureRegion(*r)
}

// CaptureScreen captures the entire virtual screen across all active displays.
func CaptureScreen() (*image.RGBA, error) {
	union, err := VirtualBounds()
	if err != nil {
		return nil, err
	}
	img, err := screenshot.CaptureRect(union)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return img, nil
}

// CaptureRegion captures a specific region of the screen.
func CaptureRegion(r region.Region) (*image.RGBA, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", r.Width(), r.Height())
	}

	bounds := image.Rect(r.Left, r.Top, r.Right, r.Bottom)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}
