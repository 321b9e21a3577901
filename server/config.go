package server

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/deepzoom"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	// DefaultWebAddress is the default address of the tile server.
	DefaultWebAddress = "localhost:5000"

	// DefaultQuality is the default JPEG quality of served tiles.
	DefaultQuality = 90

	// DefaultThumbnailSize bounds the width and height of slide thumbnails.
	DefaultThumbnailSize = 400

	// DefaultThumbnailQuality is the JPEG quality of slide thumbnails.
	DefaultThumbnailQuality = 85

	// DefaultMaxSlides is the number of slides kept open.
	DefaultMaxSlides = 32

	// DefaultTileCacheMB is the size of the encoded tile cache.
	DefaultTileCacheMB = 64

	// DefaultShutdownDelay is the number of seconds allowed for requests to finish
	// on shutdown.
	DefaultShutdownDelay = 5

	// viewerScriptFile is looked for in the web client directory.
	viewerScriptFile = "openseadragon.min.js"
)

// Config is the TOML configuration of the tile server.
type Config struct {
	Server    serverConfig
	Slides    slidesConfig
	Tiles     TilesConfig
	Thumbnail thumbnailConfig
	Cache     cacheConfig
	Convert   ConvertConfig
	Logging   wsi.LogConfig
	Auth      authConfig

	// location of the TOML file, if any
	location string
}

type serverConfig struct {
	HTTPAddress   string   `toml:"httpAddress"`
	WebClient     string   `toml:"webClient"`
	Title         string   `toml:"title"`
	ViewerScript  string   `toml:"viewer_script"`
	CorsDomains   []string `toml:"cors_domains"`
	BlockListFile string   `toml:"blocklist_file"`
	ReadTimeout   int      `toml:"read_timeout"`  // seconds
	WriteTimeout  int      `toml:"write_timeout"` // seconds
	ShutdownDelay int      `toml:"shutdown_delay"`
}

type slidesConfig struct {
	Dir       string `toml:"dir"`
	Extension string `toml:"extension"`
	Backend   string `toml:"backend"`
}

// TilesConfig gives the deep zoom parameters and encoding of tiles.
type TilesConfig struct {
	TileSize    int    `toml:"tile_size"`
	Overlap     int    `toml:"overlap"`
	Format      string `toml:"format"`
	Quality     int    `toml:"quality"`
	LimitBounds bool   `toml:"limit_bounds"`
}

// Options returns the deep zoom options for the tile configuration.
func (tc TilesConfig) Options() (deepzoom.Options, error) {
	if tc.TileSize <= 0 {
		return deepzoom.Options{}, fmt.Errorf("tile_size must be positive, got %d", tc.TileSize)
	}
	if tc.Overlap < 0 {
		return deepzoom.Options{}, fmt.Errorf("overlap must be non-negative, got %d", tc.Overlap)
	}
	if tc.Quality < 1 || tc.Quality > 100 {
		return deepzoom.Options{}, fmt.Errorf("quality must be in [1,100], got %d", tc.Quality)
	}
	format, err := wsi.ParseFormat(tc.Format)
	if err != nil {
		return deepzoom.Options{}, err
	}
	if format != wsi.JPEG && format != wsi.PNG {
		return deepzoom.Options{}, fmt.Errorf("tiles can only be jpeg or png, not %s", format)
	}
	return deepzoom.Options{
		TileSize:    tc.TileSize,
		Overlap:     tc.Overlap,
		LimitBounds: tc.LimitBounds,
		Format:      format,
	}, nil
}

type thumbnailConfig struct {
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
	Quality   int `toml:"quality"`
}

type cacheConfig struct {
	MaxSlides int `toml:"max_slides"`
	TileMB    int `toml:"tile_mb"`
}

// ConvertConfig holds the settings of the static converter.
type ConvertConfig struct {
	TilesConfig
	Workers      int    `toml:"workers"`
	Title        string `toml:"title"`
	ViewerScript string `toml:"viewer_script"`
}

// DefaultConfig returns the configuration used when no TOML file is given.
func DefaultConfig() *Config {
	c := new(Config)
	c.Server.HTTPAddress = DefaultWebAddress
	c.Server.ShutdownDelay = DefaultShutdownDelay
	c.Slides.Dir = "."
	c.Slides.Extension = datastore.DefaultExtension
	c.Tiles = TilesConfig{
		TileSize: deepzoom.DefaultTileSize,
		Overlap:  deepzoom.DefaultOverlap,
		Format:   "jpeg",
		Quality:  DefaultQuality,
	}
	c.Thumbnail = thumbnailConfig{
		MaxWidth:  DefaultThumbnailSize,
		MaxHeight: DefaultThumbnailSize,
		Quality:   DefaultThumbnailQuality,
	}
	c.Cache = cacheConfig{
		MaxSlides: DefaultMaxSlides,
		TileMB:    DefaultTileCacheMB,
	}
	c.Convert = ConvertConfig{
		TilesConfig: TilesConfig{
			TileSize:    254,
			Overlap:     1,
			Format:      "jpeg",
			Quality:     DefaultQuality,
			LimitBounds: true,
		},
		Workers: wsi.NumCPU,
	}
	return c
}

// LoadConfig loads server configuration from a TOML file.  Settings missing from the
// file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("no server TOML configuration file provided")
	}
	c := DefaultConfig()
	if _, err := toml.DecodeFile(filename, c); err != nil {
		return nil, fmt.Errorf("could not decode TOML config: %v", err)
	}
	c.location = filename
	if err := c.convertPathsToAbsolute(filename); err != nil {
		return nil, fmt.Errorf("could not convert relative paths to absolute paths in TOML config: %v", err)
	}
	wsi.Debugf("tomlConfig: %v\n", *c)
	return c, nil
}

// Location returns the TOML file the configuration was loaded from.
func (c *Config) Location() string {
	return c.location
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (c *Config) convertPathsToAbsolute(configPath string) error {
	configDir := filepath.Dir(configPath)
	paths := []struct {
		setting string
		path    *string
	}{
		{"[server].webClient", &c.Server.WebClient},
		{"[server].blocklist_file", &c.Server.BlockListFile},
		{"[slides].dir", &c.Slides.Dir},
		{"[logging].logfile", &c.Logging.Logfile},
		{"[auth].auth_file", &c.Auth.AuthFile},
	}
	for _, p := range paths {
		if *p.path == "" {
			continue
		}
		abs, err := wsi.ConvertToAbsolute(*p.path, configDir)
		if err != nil {
			return fmt.Errorf("error converting %s to absolute path: %q", p.setting, *p.path)
		}
		*p.path = abs
	}
	return nil
}

// StoreConfig returns the datastore configuration for serving slides.
func (c *Config) StoreConfig() (datastore.Config, error) {
	opts, err := c.Tiles.Options()
	if err != nil {
		return datastore.Config{}, fmt.Errorf("bad [tiles] configuration: %v", err)
	}
	return datastore.Config{
		Dir:         c.Slides.Dir,
		Extension:   c.Slides.Extension,
		Backend:     c.Slides.Backend,
		Tiles:       opts,
		MaxSlides:   c.Cache.MaxSlides,
		TileCacheMB: c.Cache.TileMB,
	}, nil
}

// ShutdownDelay returns the time allowed for in-flight requests on shutdown.
func (c *Config) ShutdownDelay() time.Duration {
	return time.Duration(c.Server.ShutdownDelay) * time.Second
}

// viewerScript returns the OpenSeadragon script location for viewer pages.
func (c *Config) viewerScript() string {
	if c.Server.ViewerScript != "" {
		return c.Server.ViewerScript
	}
	if c.Server.WebClient != "" {
		if wsi.FileExists(filepath.Join(c.Server.WebClient, viewerScriptFile)) {
			return "/static/" + viewerScriptFile
		}
	}
	return ""
}
