// Package preprocess prepares captured screen images for OCR: grayscale,
// contrast-limited adaptive histogram equalization (CLAHE) and an Otsu binarization.
// Everything here is pure and deterministic.
package preprocess

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Options controls the adaptive equalization step.
type Options struct {
	TilesX    int
	TilesY    int
	ClipLimit float64
}

// DefaultOptions is an 8x8 tile grid with a clip limit of 2.0.
var DefaultOptions = Options{TilesX: 8, TilesY: 8, ClipLimit: 2.0}

// Enhance converts img into a binary image: text and background end up as
// 0 or 255, with pixels brighter than the Otsu threshold set to 255.
func Enhance(img image.Image) *image.Gray {
	gray := Grayscale(img)
	eq := EqualizeAdaptive(gray, DefaultOptions)
	return Binarize(eq, OtsuThreshold(eq))
}

// Grayscale returns a luma copy of img whose bounds start at (0,0).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// EqualizeAdaptive applies CLAHE. Each tile gets a clipped, redistributed
// histogram mapping; pixels blend the four nearest tile mappings bilinearly.
func EqualizeAdaptive(src *image.Gray, opts Options) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	tilesX := clampInt(opts.TilesX, 1, w)
	tilesY := clampInt(opts.TilesY, 1, h)
	tileW := (w + tilesX - 1) / tilesX
	tileH := (h + tilesY - 1) / tilesY
	// Ceil division can leave trailing tiles empty; drop them.
	tilesX = (w + tileW - 1) / tileW
	tilesY = (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			luts[ty*tilesX+tx] = tileMapping(src, x0, y0, x1, y1, opts.ClipLimit)
		}
	}

	for y := 0; y < h; y++ {
		tyf := float64(y)/float64(tileH) - 0.5
		ty1 := int(math.Floor(tyf))
		ya := tyf - float64(ty1)
		ty2 := ty1 + 1
		ty1 = clampInt(ty1, 0, tilesY-1)
		ty2 = clampInt(ty2, 0, tilesY-1)

		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			txf := float64(x)/float64(tileW) - 0.5
			tx1 := int(math.Floor(txf))
			xa := txf - float64(tx1)
			tx2 := tx1 + 1
			tx1 = clampInt(tx1, 0, tilesX-1)
			tx2 = clampInt(tx2, 0, tilesX-1)

			v := srcRow[x]
			top := float64(luts[ty1*tilesX+tx1][v])*(1-xa) + float64(luts[ty1*tilesX+tx2][v])*xa
			bot := float64(luts[ty2*tilesX+tx1][v])*(1-xa) + float64(luts[ty2*tilesX+tx2][v])*xa
			dstRow[x] = uint8(math.Round(top*(1-ya) + bot*ya))
		}
	}
	return dst
}

func tileMapping(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	b := src.Bounds()
	for y := y0; y < y1; y++ {
		row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := x0; x < x1; x++ {
			hist[row[x]]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		limit := max(int(clipLimit*float64(area)/256), 1)
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		batch := excess / 256
		residual := excess - batch*256
		for i := range hist {
			hist[i] += batch
		}
		if residual > 0 {
			step := max(256/residual, 1)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = uint8(min(math.Round(float64(sum)*scale), 255))
	}
	return lut
}

// OtsuThreshold picks the level that maximizes between-class variance.
// Pixels at or below the returned level form the dark class.
func OtsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}

	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	sumAll := 0.0
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var (
		sumB, best float64
		wB         int
		threshold  uint8
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// Binarize maps pixels above t to 255 and the rest to 0.
func Binarize(src *image.Gray, t uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		srcRow := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if srcRow[x] > t {
				dstRow[x] = 255
			}
		}
	}
	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
