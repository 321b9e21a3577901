// Command-line interface to the wsiview tile server and static converter.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"

	"github.com/janelia-flyem/wsiview/converter"
	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/server"
	"github.com/janelia-flyem/wsiview/wsi"

	_ "github.com/janelia-flyem/wsiview/slide/imagefile"
	_ "github.com/janelia-flyem/wsiview/slide/openslide"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication.  Overrides the config file.
	httpAddress = flag.String("http", "", "")

	// Directory of slides.  Overrides the config file.
	slidesDir = flag.String("slides", "", "")

	// Slide backend.  Overrides the config file.
	backend = flag.String("backend", "", "")

	// Number of concurrent tile workers for conversion.
	workers = flag.Int("workers", 0, "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
wsiview serves whole-slide microscopy images as Deep Zoom tiles

Usage: wsiview [options] <command>

      -http       =string   Address for HTTP communication.
      -slides     =string   Directory of slide files.
      -backend    =string   Slide backend, e.g., "openslide" or "image".
      -workers    =number   Number of tiles generated concurrently by convert.
      -cpuprofile =string   Write CPU profile to this file.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	serve   [config.toml]
	convert <slides dir> <output dir or URL> [config=config.toml]
	        [tile_size=254] [overlap=1] [format=jpeg] [quality=90]

The convert output may be a directory or a bucket URL like gs://bucket/site,
s3://bucket/site?region=us-east-1 or file:///path/to/site.
`

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}

	if *runVerbose {
		wsi.Verbose = true
		wsi.SetLogMode(wsi.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Use all logical CPUs unless overridden.
	wsi.NumCPU = runtime.NumCPU()
	if *useCPU != 0 {
		wsi.NumCPU = *useCPU
	}
	runtime.GOMAXPROCS(wsi.NumCPU)

	// Capture ctrl+c and other interrupts.  Commands shut down when ctx is done.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := wsi.Command(flag.Args())
	err := DoCommand(ctx, command)
	wsi.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if *cpuprofile != "" {
			pprof.StopCPUProfile()
		}
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd wsi.Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command")
	}

	switch cmd.Name() {
	case "serve":
		return DoServe(ctx, cmd)
	case "convert":
		return DoConvert(ctx, cmd)
	case "about":
		fmt.Println(datastore.Versions())
	default:
		return fmt.Errorf("unknown command %q, try 'wsiview help'", cmd.Name())
	}
	return nil
}

// loadConfig returns the configuration in the given TOML file or the defaults if
// filename is empty, with command-line flags applied.
func loadConfig(filename string) (*server.Config, error) {
	config := server.DefaultConfig()
	if filename != "" {
		var err error
		if config, err = server.LoadConfig(filename); err != nil {
			return nil, err
		}
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	if *slidesDir != "" {
		config.Slides.Dir = *slidesDir
	}
	if *backend != "" {
		config.Slides.Backend = *backend
	}
	if *workers > 0 {
		config.Convert.Workers = *workers
	}
	return config, nil
}

// DoServe runs the tile server until interrupted.
func DoServe(ctx context.Context, cmd wsi.Command) error {
	config, err := loadConfig(cmd.Argument(1))
	if err != nil {
		return err
	}
	config.Logging.SetLogger()
	wsi.Infof("wsiview %s serving slides in %s\n", wsi.Version, config.Slides.Dir)
	return server.Run(ctx, config)
}

// DoConvert writes a static Deep Zoom site for a directory of slides.
func DoConvert(ctx context.Context, cmd wsi.Command) error {
	slides := cmd.Argument(1)
	output := cmd.Argument(2)
	if slides == "" || output == "" {
		return fmt.Errorf("convert command must be followed by the slides directory and the output location")
	}
	configFile, _ := cmd.Setting("config")
	config, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	tc := config.Convert.TilesConfig
	for _, key := range []string{"tile_size", "overlap", "quality"} {
		value, found := cmd.Setting(key)
		if !found {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("bad %s setting %q: %v", key, value, err)
		}
		switch key {
		case "tile_size":
			tc.TileSize = n
		case "overlap":
			tc.Overlap = n
		case "quality":
			tc.Quality = n
		}
	}
	if format, found := cmd.Setting("format"); found {
		tc.Format = format
	}
	tileOpts, err := tc.Options()
	if err != nil {
		return err
	}
	config.Logging.SetLogger()

	opts := converter.Options{
		SlideDir:     slides,
		Output:       output,
		Extension:    config.Slides.Extension,
		Backend:      config.Slides.Backend,
		Tiles:        tileOpts,
		Quality:      tc.Quality,
		Workers:      config.Convert.Workers,
		Title:        config.Convert.Title,
		ViewerScript: config.Convert.ViewerScript,
	}
	report, err := converter.Convert(ctx, opts)
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d slides could not be converted", n, len(report.Slides))
	}
	return nil
}
