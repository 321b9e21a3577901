package deepzoom

import (
	"encoding/xml"
	"fmt"
)

// Namespace is the XML namespace of Deep Zoom image descriptors.
const Namespace = "http://schemas.microsoft.com/deepzoom/2008"

// Descriptor is the DZI document describing a tile pyramid.
type Descriptor struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     Size     `xml:"Size"`
}

// Size is the full resolution size element of a descriptor.
type Size struct {
	Width  int64 `xml:"Width,attr"`
	Height int64 `xml:"Height,attr"`
}

// Descriptor returns the DZI descriptor of the pyramid.
func (g *Generator) Descriptor() Descriptor {
	w, h := g.Dimensions()
	return Descriptor{
		Xmlns:    Namespace,
		TileSize: g.opts.TileSize,
		Overlap:  g.opts.Overlap,
		Format:   g.opts.Format.String(),
		Size:     Size{Width: w, Height: h},
	}
}

// DZI returns the XML encoding of the descriptor.
func (g *Generator) DZI() ([]byte, error) {
	return g.Descriptor().Marshal()
}

// Marshal returns the XML document including the XML declaration.
func (d Descriptor) Marshal() ([]byte, error) {
	data, err := xml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("unable to encode dzi: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// ParseDescriptor decodes a DZI document.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := xml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("bad dzi document: %w", err)
	}
	return d, nil
}
