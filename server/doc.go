/*
Package server serves whole-slide images to web browsers using the Deep Zoom protocol.

Routes:

	/                                          slide gallery
	/static/*                                  files from the web client directory
	/thumbnail/{filename}                      JPEG preview of a slide
	/info/{filename}                           JSON description of a slide
	/api/{filename}.dzi                        Deep Zoom descriptor
	/api/{filename}_files/{level}/{col}_{row}.{jpeg|png}  one tile
	/{slug}                                    viewer page for a slide name or name prefix

Configuration is read from a TOML file.  See scripts/distro-files/config-full.toml
for every setting.
*/
package server
