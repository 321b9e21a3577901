package pages

import (
	"bytes"
	"strings"
	"testing"
)

func TestServerIndex(t *testing.T) {
	var buf bytes.Buffer
	if err := ServerIndex(&buf, Index{}); err != nil {
		t.Fatal(err)
	}
	page := buf.String()
	if !strings.Contains(page, "No slides found.") {
		t.Errorf("Expected empty state in page:\n%s\n", page)
	}
	if !strings.Contains(page, DefaultTitle) {
		t.Errorf("Expected default title in page\n")
	}

	buf.Reset()
	idx := Index{
		Title: "Slides",
		Cards: []Card{
			{Name: "1460-09", ViewURL: "/1460-09", ThumbnailURL: "/thumbnail/1460-09.svs"},
			{Name: "<b>x</b>", ViewURL: "/x"},
		},
	}
	if err := ServerIndex(&buf, idx); err != nil {
		t.Fatal(err)
	}
	page = buf.String()
	if strings.Contains(page, "No slides found.") {
		t.Errorf("Unexpected empty state with slides\n")
	}
	for _, want := range []string{`href="/1460-09"`, `src="/thumbnail/1460-09.svs"`, "&lt;b&gt;x&lt;/b&gt;"} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected %s in page:\n%s\n", want, page)
		}
	}
	if strings.Count(page, "<img") != 1 {
		t.Errorf("Expected a single thumbnail image\n")
	}
}

func TestViewers(t *testing.T) {
	v := Viewer{Name: "1460", DZIURL: "/api/1460-09.svs.dzi", BackURL: "/"}
	var buf bytes.Buffer
	if err := ServerViewer(&buf, v); err != nil {
		t.Fatal(err)
	}
	page := buf.String()
	for _, want := range []string{"1460-09.svs.dzi", DefaultViewerScript, "showRotationControl", "showNavigator", `href="/"`} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected %s in server viewer:\n%s\n", want, page)
		}
	}

	buf.Reset()
	v = Viewer{Name: "1460-09", DZIURL: "../tiles/1460-09.dzi", BackURL: "../index.html", ScriptURL: "openseadragon.min.js"}
	if err := StaticViewer(&buf, v); err != nil {
		t.Fatal(err)
	}
	page = buf.String()
	for _, want := range []string{"tiles/1460-09.dzi", `src="openseadragon.min.js"`, "rotateViewer", `href="../index.html"`} {
		if !strings.Contains(page, want) {
			t.Errorf("Expected %s in static viewer:\n%s\n", want, page)
		}
	}
}

func TestStaticIndex(t *testing.T) {
	var buf bytes.Buffer
	if err := StaticIndex(&buf, Index{Cards: []Card{{Name: "a", ViewURL: "view/a.html"}}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `href="view/a.html"`) {
		t.Errorf("Expected card link in static index:\n%s\n", buf.String())
	}
	buf.Reset()
	if err := StaticIndex(&buf, Index{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No slides converted.") {
		t.Errorf("Expected empty state in static index\n")
	}
}

func TestPathEscape(t *testing.T) {
	tests := map[string]string{
		"a.svs":         "a.svs",
		"a b/c#d.svs":   "a%20b/c%23d.svs",
		"sub/1460?.svs": "sub/1460%3F.svs",
	}
	for in, want := range tests {
		if got := PathEscape(in); got != want {
			t.Errorf("PathEscape(%q) = %q, expected %q\n", in, got, want)
		}
	}
}
