package ocr

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Upscale thresholds at the default 300 DPI target. Pages smaller than
// this recognize poorly, so they are scaled up before hitting the engine;
// other DPI targets scale both thresholds proportionally.
const (
	baseDPI       = 300
	baseMinWidth  = 1500
	baseMinHeight = 2000
)

// Report records which preprocessing steps ran on a page image.
type Report struct {
	Grayscale       bool
	ContrastStretch bool
	NoiseReduction  bool
	Upscaled        bool
}

// Preprocess prepares a page image for recognition: grayscale conversion,
// contrast stretch, and for images under the targetDPI-derived minimum a
// light blur plus Catmull-Rom upscale. A non-positive targetDPI falls back
// to 300. Engines receive the processed image; the original is untouched.
func Preprocess(img image.Image, targetDPI int) (image.Image, Report) {
	var report Report

	if targetDPI <= 0 {
		targetDPI = baseDPI
	}
	minWidth := baseMinWidth * targetDPI / baseDPI
	minHeight := baseMinHeight * targetDPI / baseDPI

	gray := toGray(img)
	report.Grayscale = true

	stretchContrast(gray, 1.5)
	report.ContrastStretch = true

	b := gray.Bounds()
	if b.Dx() < minWidth || b.Dy() < minHeight {
		blurred := boxBlur(gray)
		report.NoiseReduction = true

		scaled := upscale(blurred, 2)
		report.Upscaled = true
		return scaled, report
	}

	return gray, report
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}
	b := img.Bounds()
	out := image.NewGray(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

// stretchContrast scales pixel distance from mid-gray by factor, clamped
// to the valid range.
func stretchContrast(g *image.Gray, factor float64) {
	for i, p := range g.Pix {
		v := 128 + factor*(float64(p)-128)
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		g.Pix[i] = uint8(v)
	}
}

// boxBlur applies a 3x3 mean filter. Cheap noise reduction for low
// resolution scans; anything stronger eats thin strokes.
func boxBlur(g *image.Gray) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum, n := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					sum += int(g.GrayAt(px, py).Y)
					n++
				}
			}
			out.SetGray(x, y, color.Gray{Y: uint8(sum / n)})
		}
	}
	return out
}

func upscale(g *image.Gray, factor int) *image.Gray {
	b := g.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), g, b, draw.Src, nil)
	return dst
}
