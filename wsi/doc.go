/*
Package wsi holds the types and utility functions shared by the slide server and the
batch pyramid converter: leveled logging, the error taxonomy, image encoding and a few
file system helpers.

Whole-slide images are very large multi-resolution images produced by slide scanners.
Decoding them is delegated to a slide backend (see package slide) while presentation
to web clients uses the Deep Zoom tile protocol (see package deepzoom).
*/
package wsi
