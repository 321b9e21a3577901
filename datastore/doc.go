/*
Package datastore maps slide names to files in a slide directory and keeps a bounded
set of opened slides, each paired with its deep zoom generator.

Names arriving over HTTP are checked before any file system access: empty names,
absolute paths and ".." segments are rejected.  A short name like "1460" resolves to
"1460.svs" or, failing that, the lexically first slide whose name starts with "1460".

Opened slides are reference counted.  A slide evicted from the LRU is closed once
its last user releases it, and a slide whose file changed on disk is reopened on
the next request.  Concurrent first requests for a slide share a single open.
*/
package datastore
