package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"

	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/pages"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	// WebAPIPath is the URL path prefix of descriptors and tiles.
	WebAPIPath = "/api/"

	// tileCacheControl is sent with tiles, which never change for a given slide file.
	tileCacheControl = "public, max-age=86400"
)

var (
	thumbnailRE = regexp.MustCompile(`^/thumbnail/(?P<filename>.+)$`)
	infoRE      = regexp.MustCompile(`^/info/(?P<filename>.+)$`)
	dziRE       = regexp.MustCompile(`^/api/(?P<filename>.+)\.dzi$`)
	tileRE      = regexp.MustCompile(`^/api/(?P<filename>.+)_files/(?P<level>\d+)/(?P<col>\d+)_(?P<row>\d+)\.(?P<format>jpeg|jpg|png)$`)
	slugRE      = regexp.MustCompile(`^/(?P<slug>.+)$`)
)

// BadRequest writes a 400 error with a message that is also logged.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusBadRequest, format, args...)
}

// NotFound writes a 404 error with a message that is also logged.
func NotFound(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusNotFound, format, args...)
}

// ServerError writes a 500 error with a message that is also logged.
func ServerError(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusInternalServerError, format, args...)
}

func unauthorized(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusUnauthorized, format, args...)
}

func forbidden(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusForbidden, format, args...)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	errorMsg := fmt.Sprintf("%s (%s).", msg, r.URL.Path)
	if status >= 500 {
		wsi.Errorf("%s\n", errorMsg)
	} else {
		wsi.Debugf("%d: %s\n", status, errorMsg)
	}
	http.Error(w, errorMsg, status)
}

// writeSlideError maps a slide error to a status.  Not found errors are 404, I/O
// errors 500, and decode errors use decodeStatus.
func writeSlideError(w http.ResponseWriter, r *http.Request, err error, decodeStatus int) {
	status := http.StatusInternalServerError
	switch wsi.ErrorKind(err) {
	case wsi.ErrNotFound:
		status = http.StatusNotFound
	case wsi.ErrDecode:
		status = decodeStatus
	}
	writeError(w, r, status, "%v", err)
}

// Server serves the slides of a datastore over HTTP.
type Server struct {
	config *Config
	store  *datastore.Store
	mux    *web.Mux

	viewerScript string
}

// New returns a server for the given configuration that takes ownership of the store.
func New(config *Config, store *datastore.Store) (*Server, error) {
	s := &Server{
		config:       config,
		store:        store,
		viewerScript: config.viewerScript(),
	}
	auth, err := loadAuthFile(config.Auth)
	if err != nil {
		return nil, err
	}
	blocked, err := loadBlockListFile(config.Server.BlockListFile)
	if err != nil {
		return nil, err
	}
	s.initRoutes(auth, blocked)
	return s, nil
}

// Store returns the server's datastore.
func (s *Server) Store() *datastore.Store {
	return s.store
}

func (s *Server) initRoutes(auth *authorizer, blocked *blockList) {
	mux := web.New()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.EnvInit)
	if len(s.config.Server.CorsDomains) != 0 {
		wsi.Infof("Allowing CORS requests from %v\n", s.config.Server.CorsDomains)
		c := cors.New(cors.Options{
			AllowedOrigins: s.config.Server.CorsDomains,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Authorization"},
		})
		mux.Use(c.Handler)
	}
	if blocked != nil {
		mux.Use(blocked.handler)
	}
	if auth != nil {
		mux.Use(auth.isAuthorized)
	}

	// Images are already compressed and gzhttp skips their content types.
	mux.Use(func(h http.Handler) http.Handler { return gzhttp.GzipHandler(h) })

	mux.Get("/", s.indexHandler)
	mux.Get("/favicon.ico", http.NotFound)
	if s.config.Server.WebClient != "" {
		wsi.Infof("Serving static files from %s\n", s.config.Server.WebClient)
		mux.Get("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.Server.WebClient))))
	} else {
		mux.Get("/static/*", http.NotFound)
	}
	mux.Get(thumbnailRE, s.thumbnailHandler)
	mux.Get(infoRE, s.infoHandler)
	mux.Get(tileRE, s.tileHandler)
	mux.Get(dziRE, s.dziHandler)
	mux.Get(slugRE, s.viewerHandler)
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, r, "no resource at path")
	})
	s.mux = mux
}

// ServeHTTP handles a request with the server's routes and middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeHTML(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List()
	if err != nil {
		ServerError(w, r, "unable to list slides: %v", err)
		return
	}
	idx := pages.Index{Title: s.config.Server.Title}
	for _, info := range infos {
		idx.Cards = append(idx.Cards, pages.Card{
			Name:         info.Slug,
			ViewURL:      "/" + pages.PathEscape(info.Slug),
			ThumbnailURL: "/thumbnail/" + pages.PathEscape(info.Filename),
		})
	}
	var buf bytes.Buffer
	if err := pages.ServerIndex(&buf, idx); err != nil {
		ServerError(w, r, "%v", err)
		return
	}
	writeHTML(w, buf.Bytes())
}

// reservedSlug returns true for paths that must never resolve to a slide viewer.
func reservedSlug(slug string) bool {
	return strings.HasPrefix(slug, "api/") || strings.HasPrefix(slug, "static/") || slug == "favicon.ico"
}

func (s *Server) viewerHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	slug := c.URLParams["slug"]
	if reservedSlug(slug) {
		NotFound(w, r, "no resource at path")
		return
	}
	name, err := s.store.Resolve(slug)
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	v := pages.Viewer{
		Name:      slug,
		DZIURL:    WebAPIPath + pages.PathEscape(name) + ".dzi",
		BackURL:   "/",
		ScriptURL: s.viewerScript,
	}
	var buf bytes.Buffer
	if err := pages.ServerViewer(&buf, v); err != nil {
		ServerError(w, r, "%v", err)
		return
	}
	writeHTML(w, buf.Bytes())
}

func (s *Server) thumbnailHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	h, err := s.store.Get(c.URLParams["filename"])
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	defer h.Release()
	if r.Context().Err() != nil {
		return
	}
	cfg := s.config.Thumbnail
	data, err := s.store.Thumbnail(h, cfg.MaxWidth, cfg.MaxHeight, wsi.JPEG, cfg.Quality)
	if err != nil {
		ServerError(w, r, "unable to make thumbnail: %v", err)
		return
	}
	w.Header().Set("Content-Type", wsi.JPEG.ContentType())
	w.Write(data)
}

// levelInfo describes a native slide level.
type levelInfo struct {
	Width      int64   `json:"width"`
	Height     int64   `json:"height"`
	Downsample float64 `json:"downsample"`
}

// slideInfo is the JSON returned for /info requests.
type slideInfo struct {
	Name        string            `json:"name"`
	Width       int64             `json:"width"`
	Height      int64             `json:"height"`
	TileSize    int               `json:"tile_size"`
	Overlap     int               `json:"overlap"`
	Format      string            `json:"format"`
	Levels      int               `json:"levels"`
	LevelTiles  [][2]int          `json:"level_tiles"`
	TileCount   int64             `json:"tile_count"`
	SlideLevels []levelInfo       `json:"slide_levels"`
	Properties  map[string]string `json:"properties"`
}

func (s *Server) infoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	h, err := s.store.Get(c.URLParams["filename"])
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	defer h.Release()

	gen := h.Generator
	opts := gen.Options()
	info := slideInfo{
		Name:       h.Name,
		TileSize:   opts.TileSize,
		Overlap:    opts.Overlap,
		Format:     opts.Format.String(),
		Levels:     gen.LevelCount(),
		TileCount:  gen.TileCount(),
		Properties: h.Slide.Properties(),
	}
	info.Width, info.Height = gen.Dimensions()
	for level := 0; level < gen.LevelCount(); level++ {
		cols, rows := gen.LevelTiles(level)
		info.LevelTiles = append(info.LevelTiles, [2]int{cols, rows})
	}
	for level := 0; level < h.Slide.LevelCount(); level++ {
		lw, lh := h.Slide.LevelDimensions(level)
		info.SlideLevels = append(info.SlideLevels, levelInfo{lw, lh, h.Slide.LevelDownsample(level)})
	}
	jsonBytes, err := json.Marshal(info)
	if err != nil {
		ServerError(w, r, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonBytes)
}

func (s *Server) dziHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	h, err := s.store.Get(c.URLParams["filename"])
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	defer h.Release()
	data, err := h.Generator.DZI()
	if err != nil {
		ServerError(w, r, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(data)
}

func (s *Server) tileHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var coords [3]int
	for i, param := range []string{"level", "col", "row"} {
		v, err := strconv.Atoi(c.URLParams[param])
		if err != nil {
			NotFound(w, r, "bad tile %s %q", param, c.URLParams[param])
			return
		}
		coords[i] = v
	}
	format, err := wsi.ParseFormat(c.URLParams["format"])
	if err != nil {
		NotFound(w, r, "%v", err)
		return
	}
	h, err := s.store.Get(c.URLParams["filename"])
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	defer h.Release()
	if r.Context().Err() != nil {
		return
	}
	data, err := s.store.Tile(h, coords[0], coords[1], coords[2], format, s.config.Tiles.Quality)
	if err != nil {
		writeSlideError(w, r, err, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", tileCacheControl)
	w.Write(data)
}
