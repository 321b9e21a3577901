/*
wsiview serves whole-slide microscopy images (Aperio SVS, NDPI, MIRAX, tiled TIFF and
plain images) to web browsers as Deep Zoom tile pyramids, either on demand through
a tile server or as a static site written ahead of time.

# Standard wsiview commands

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	wsiview about

Prints the version of wsiview and of each slide backend compiled into the executable.
Vendor formats need the "openslide" build tag and libopenslide.

	wsiview serve [config.toml]

Starts a web server for the slides in the configured directory.  Without a
configuration file, slides with the .svs extension in the current directory are
served at localhost:5000.  The -http, -slides and -backend options override the
configuration file.  The server shuts down gracefully on ctrl-C.

	wsiview convert <slides dir> <output dir or URL> [config=config.toml] [tile_size=254]
	        [overlap=1] [format=jpeg] [quality=90]

Writes the Deep Zoom pyramid of every slide into the output location along with a
viewer page per slide and an index page.  The output may be a local directory or a
bucket URL, e.g., gs://my-bucket/slides or s3://my-bucket/slides?region=us-east-1.
Slides that already have a complete pyramid are not regenerated, so an interrupted
conversion can simply be rerun.  The -workers option sets how many tiles are
generated at once.

# Viewing a converted site

The generated pages load tiles with relative URLs, so the output directory can be
served by any static file server:

	% wsiview convert /data/slides /var/www/slides
	% cd /var/www/slides && python3 -m http.server
*/
package main
