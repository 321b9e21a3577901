/*
Package pages renders the HTML pages of the tile server and of converted static sites.
*/
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"
)

// DefaultViewerScript is the OpenSeadragon script used when no local copy is served.
const DefaultViewerScript = "https://cdnjs.cloudflare.com/ajax/libs/openseadragon/4.1.0/openseadragon.min.js"

// DefaultViewerImages is the OpenSeadragon button image prefix matching DefaultViewerScript.
const DefaultViewerImages = "https://cdnjs.cloudflare.com/ajax/libs/openseadragon/4.1.0/images/"

// DefaultTitle is the site title shown on index pages.
const DefaultTitle = "Digital Slide Library"

//go:embed templates
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.html"))

// Card is a slide entry on an index page.
type Card struct {
	// Name is the displayed slide name.
	Name string

	// ViewURL links to the slide viewer.
	ViewURL string

	// ThumbnailURL is an optional preview image.
	ThumbnailURL string
}

// Index is a gallery of slides.
type Index struct {
	Title string
	Cards []Card
}

// Viewer is a single slide page.
type Viewer struct {
	// Name is the displayed slide name.
	Name string

	// DZIURL is the location of the slide's deep zoom descriptor.
	DZIURL string

	// BackURL links back to the index page.
	BackURL string

	// ScriptURL and ImagesURL locate OpenSeadragon.
	ScriptURL string
	ImagesURL string
}

func (v *Viewer) setDefaults() {
	if v.ScriptURL == "" {
		v.ScriptURL = DefaultViewerScript
	}
	if v.ImagesURL == "" {
		v.ImagesURL = DefaultViewerImages
	}
}

func render(w io.Writer, name string, data interface{}) error {
	// Render to a buffer so a template error never leaves a partial page.
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("unable to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// ServerIndex writes the tile server's slide gallery.  An empty index renders a
// message saying no slides were found.
func ServerIndex(w io.Writer, idx Index) error {
	if idx.Title == "" {
		idx.Title = DefaultTitle
	}
	return render(w, "index.html", idx)
}

// ServerViewer writes the tile server's slide viewer.
func ServerViewer(w io.Writer, v Viewer) error {
	v.setDefaults()
	return render(w, "viewer.html", v)
}

// StaticIndex writes the index page of a converted site.
func StaticIndex(w io.Writer, idx Index) error {
	if idx.Title == "" {
		idx.Title = DefaultTitle
	}
	return render(w, "static_index.html", idx)
}

// StaticViewer writes the viewer page of a converted slide.
func StaticViewer(w io.Writer, v Viewer) error {
	v.setDefaults()
	return render(w, "static_viewer.html", v)
}

// PathEscape escapes each segment of a slash-separated path for use in a URL.
func PathEscape(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
