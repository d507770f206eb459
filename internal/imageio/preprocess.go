package imageio

import (
	"image"

	"github.com/disintegration/imaging"
)

// ClipMean and ClipStd are the per-channel normalization of CLIP image encoders.
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocessor turns a decoded image into a CHW float32 row.
type Preprocessor interface {
	// Size is the square side of the output.
	Size() int
	Process(img image.Image) []float32
}

// CLIP resizes the shortest side to Size with bicubic filtering, center-crops
// and normalizes with the CLIP mean and std.
type CLIP struct {
	side int
}

// NewCLIP returns a CLIP preprocessor for a square input side.
func NewCLIP(side int) CLIP {
	return CLIP{side: side}
}

func (c CLIP) Size() int { return c.side }

func (c CLIP) Process(img image.Image) []float32 {
	resized := imaging.Fill(img, c.side, c.side, imaging.Center, imaging.CatmullRom)
	return toCHW(resized, func(ch int, v float32) float32 {
		return (v - ClipMean[ch]) / ClipStd[ch]
	})
}

// LPIPS resizes to Size x Size and scales pixels to [-1, 1].
type LPIPS struct {
	side int
}

// NewLPIPS returns an LPIPS preprocessor for a square input side.
func NewLPIPS(side int) LPIPS {
	return LPIPS{side: side}
}

func (l LPIPS) Size() int { return l.side }

func (l LPIPS) Process(img image.Image) []float32 {
	resized := imaging.Resize(img, l.side, l.side, imaging.CatmullRom)
	return toCHW(resized, func(_ int, v float32) float32 {
		return 2*v - 1
	})
}

// toCHW lays out RGB planes of img with values in [0, 1] passed through norm.
// Alpha is dropped.
func toCHW(img *image.NRGBA, norm func(ch int, v float32) float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			i := y*w + x
			for ch := 0; ch < 3; ch++ {
				out[ch*plane+i] = norm(ch, float32(px[ch])/255)
			}
		}
	}
	return out
}
