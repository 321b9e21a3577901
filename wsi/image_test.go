package wsi

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/janelia-flyem/go/go.image/bmp"
	"github.com/janelia-flyem/go/go.image/tiff"
	. "github.com/janelia-flyem/go/gocheck"
)

// makeGradient returns an NRGBA image with distinct values along both axes.
func makeGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), uint8(x ^ y), 0xff})
		}
	}
	return img
}

func (s *WsiSuite) TestParseFormat(c *C) {
	tests := map[string]Format{
		"jpeg": JPEG, "JPG": JPEG, ".png": PNG, "PNG": PNG,
	}
	for str, expected := range tests {
		f, err := ParseFormat(str)
		c.Assert(err, IsNil)
		c.Assert(f, Equals, expected)
	}
	for _, bad := range []string{"webp", "tiff", "bmp", ""} {
		_, err := ParseFormat(bad)
		c.Assert(err, NotNil)
	}
	c.Assert(JPEG.ContentType(), Equals, "image/jpeg")
	c.Assert(PNG.String(), Equals, "png")
}

func (s *WsiSuite) TestEncodeRoundTrip(c *C) {
	src := makeGradient(40, 30)
	for _, format := range []Format{JPEG, PNG} {
		data, err := EncodeImageBytes(src, format, 90)
		c.Assert(err, IsNil)
		img, name, err := ImageFromBytes(data)
		c.Assert(err, IsNil)
		c.Assert(name, Equals, format.String())
		c.Assert(img.Bounds().Dx(), Equals, 40)
		c.Assert(img.Bounds().Dy(), Equals, 30)
	}
	_, _, err := ImageFromBytes([]byte("not an image"))
	c.Assert(ErrorKind(err), Equals, ErrDecode)
}

func (s *WsiSuite) TestEncodeUnsupported(c *C) {
	_, err := EncodeImageBytes(makeGradient(4, 4), Format(7), 90)
	c.Assert(ErrorKind(err), Equals, ErrDecode)
}

func (s *WsiSuite) TestDecodeFlatFiles(c *C) {
	src := makeGradient(24, 12)
	var tiffBuf, bmpBuf bytes.Buffer
	c.Assert(tiff.Encode(&tiffBuf, src, nil), IsNil)
	c.Assert(bmp.Encode(&bmpBuf, src), IsNil)

	dir := c.MkDir()
	for name, data := range map[string][]byte{"flat.tif": tiffBuf.Bytes(), "flat.bmp": bmpBuf.Bytes()} {
		filename := filepath.Join(dir, name)
		c.Assert(os.WriteFile(filename, data, 0644), IsNil)
		img, _, err := ImageFromFile(filename)
		c.Assert(err, IsNil)
		c.Assert(img.Bounds().Dx(), Equals, 24)
		c.Assert(img.Bounds().Dy(), Equals, 12)
	}

	_, _, err := ImageFromFile(filepath.Join(dir, "missing.tif"))
	c.Assert(ErrorKind(err), Equals, ErrNotFound)

	garbage := filepath.Join(dir, "garbage.svs")
	c.Assert(os.WriteFile(garbage, []byte("not an image"), 0644), IsNil)
	_, _, err = ImageFromFile(garbage)
	c.Assert(ErrorKind(err), Equals, ErrDecode)
}

func (s *WsiSuite) TestFlatten(c *C) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 0xff})
	src.SetNRGBA(1, 0, color.NRGBA{0, 0, 0, 0})

	bg, err := ParseHexColor("#ffffff")
	c.Assert(err, IsNil)
	flat := Flatten(src, bg)
	c.Assert(flat.RGBAAt(0, 0), Equals, color.RGBA{10, 20, 30, 0xff})
	c.Assert(flat.RGBAAt(1, 0), Equals, color.RGBA{0xff, 0xff, 0xff, 0xff})

	_, err = ParseHexColor("fff")
	c.Assert(err, NotNil)
	gray, err := ParseHexColor("E0E0E0")
	c.Assert(err, IsNil)
	c.Assert(gray, Equals, color.RGBA{0xe0, 0xe0, 0xe0, 0xff})
}

func (s *WsiSuite) TestToNRGBA(c *C) {
	src := image.NewRGBA(image.Rect(5, 5, 15, 10))
	dst := ToNRGBA(src)
	c.Assert(dst.Bounds(), Equals, image.Rect(0, 0, 10, 5))

	n := makeGradient(3, 3)
	c.Assert(ToNRGBA(n) == n, Equals, true)
}
