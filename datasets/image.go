package datasets

import (
	"fmt"
	"image"
	"os"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultImageSize is the fixed spatial resolution samples are resized to.
const DefaultImageSize = 224

// Per-channel affine normalization constants the shared backbone expects.
// These are the standard ImageNet statistics and must be identical between
// training and inference.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// loadImageTensor reads the raster image at path, converts it to 3-channel
// color, resizes it to size x size with Lanczos resampling, scales pixel
// intensities to [0,1] and applies the per-channel ImageNet normalization.
// The result is a flat float32 buffer in HWC layout of length size*size*3.
func loadImageTensor(path string, size int) ([]float32, error) {
	img, err := openImage(path)
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, size, size, imaging.Lanczos)
	nrgba := imaging.Clone(resized)

	buf := make([]float32, size*size*3)
	for y := 0; y < size; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < size; x++ {
			pix := row[x*4:]
			base := (y*size + x) * 3
			for c := 0; c < 3; c++ {
				v := float32(pix[c]) / 255.0
				buf[base+c] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return buf, nil
}

// openImage decodes an image using the registered decoders, falling back to
// an explicit WebP decode for files the standard path rejects.
func openImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}
