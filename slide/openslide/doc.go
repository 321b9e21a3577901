/*
Package openslide is the slide backend for vendor whole-slide formats (Aperio SVS,
Hamamatsu NDPI, Leica SCN, MIRAX, Philips TIFF, generic tiled TIFF, ...) using the
OpenSlide C library through cgo.

The binding is only compiled with the "openslide" build tag since it requires the
library and its headers to be installed (e.g., libopenslide-dev):

	go build -tags openslide ./cmd/wsiview

Without the tag this package registers nothing and slides are served by the pure Go
image backend.
*/
package openslide
