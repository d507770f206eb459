// Package imageio decodes item and generated images and turns them into
// model-ready pixel tensors.
package imageio

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// Open decodes a JPEG, PNG, WebP or AVIF file.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("image " + path)
		}
		return nil, errors.IOError("failed to open image "+path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.IOError("failed to decode image "+path, err)
	}
	return img, nil
}
