/*
	This file supports image operations: encoding tiles and thumbnails for delivery,
	decoding image files and flattening transparent slide regions onto a background.
*/

package wsi

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"

	// Slides stored as flat TIFF or BMP files are decoded but never encoded.
	_ "github.com/janelia-flyem/go/go.image/bmp"
	_ "github.com/janelia-flyem/go/go.image/tiff"
)

// DefaultJPEGQuality is the quality of images returned if requesting JPEG images
// and an explicit quality amount is omitted.
const DefaultJPEGQuality = 80

// Format is an image encoding used for tiles and thumbnails.
type Format uint8

const (
	JPEG Format = iota
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	}
	return fmt.Sprintf("unknown format (%d)", f)
}

// ContentType returns the HTTP Content-Type for the format.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// ParseFormat returns the Format given a name or file extension like "jpg" or ".png".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	}
	return JPEG, fmt.Errorf("illegal image format requested: %q", s)
}

// EncodeImage writes img to w in the given format.  Quality only applies to JPEG and
// defaults to DefaultJPEGQuality if not in [1,100].
func EncodeImage(w io.Writer, img image.Image, format Format, quality int) error {
	var err error
	switch format {
	case JPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case PNG:
		err = png.Encode(w, img)
	default:
		return DecodeError(fmt.Errorf("format %d", format), "unsupported encoding")
	}
	if err != nil {
		return DecodeError(err, "unable to encode %s image", format)
	}
	return nil
}

// EncodeImageBytes is like EncodeImage but returns the encoded bytes.
func EncodeImageBytes(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImageFromFile returns an image and its format name given a file name.
func ImageFromFile(filename string) (img image.Image, format string, err error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", NotFoundf("image file %q", filename)
		}
		return nil, "", IOError(err, "unable to read image %q", filename)
	}
	img, format, err = ImageFromBytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("image file %q: %w", filename, err)
	}
	return img, format, nil
}

// ImageFromBytes decodes a JPEG, PNG, TIFF or BMP image.
func ImageFromBytes(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", DecodeError(err, "unable to decode %d bytes", len(data))
	}
	return img, format, nil
}

// ToNRGBA returns img as a non-premultiplied RGBA image anchored at (0,0).
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Flatten composites a possibly transparent image over an opaque background color
// and returns an RGBA image with no alpha.
func Flatten(img image.Image, bg color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// ParseHexColor parses colors like "ffffff" or "#E0E0E0" into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("bad hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad hex color %q: %v", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
