package datastore

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"github.com/golang/groupcache/lru"

	"github.com/janelia-flyem/wsiview/deepzoom"
	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

// Handle is a reference to an open slide and its deep zoom generator.  Handles
// returned by Store.Get must be released after use.
type Handle struct {
	Name      string
	Slide     slide.Slide
	Generator *deepzoom.Generator
	ModTime   time.Time
	Size      int64

	store *Store

	// guarded by store.mu
	refs    int
	evicted bool
	closed  bool
}

// current returns true if the file has not changed since the slide was opened.
func (h *Handle) current(fi os.FileInfo) bool {
	return fi.Size() == h.Size && fi.ModTime().Equal(h.ModTime)
}

// generation identifies the version of the slide file the handle was opened from.
func (h *Handle) generation() string {
	return fmt.Sprintf("%d-%d", h.ModTime.UnixNano(), h.Size)
}

// Release drops the caller's reference.  A slide evicted from the cache is closed
// when its last reference is released.
func (h *Handle) Release() {
	s := h.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.refs <= 0 {
		wsi.Errorf("slide %q released more times than acquired\n", h.Name)
		return
	}
	h.refs--
	if h.refs == 0 && h.evicted {
		h.close()
	}
}

// close must be called with store.mu held.
func (h *Handle) close() {
	if h.closed {
		return
	}
	h.closed = true
	if err := h.Slide.Close(); err != nil {
		wsi.Errorf("unable to close slide %q: %v\n", h.Name, err)
		return
	}
	wsi.Debugf("Closed slide %q\n", h.Name)
}

// evicted is the handle cache callback, called with store.mu held.
func (s *Store) evicted(key lru.Key, value interface{}) {
	h := value.(*Handle)
	h.evicted = true
	if h.refs == 0 {
		h.close()
	}
}

// acquire returns a cached handle for the file if it is still current, taking a
// reference.  Stale handles are evicted.  Must be called with s.mu held.
func (s *Store) acquire(name string, fi os.FileInfo) *Handle {
	v, found := s.handles.Get(name)
	if !found {
		return nil
	}
	h := v.(*Handle)
	if !h.current(fi) {
		wsi.Infof("Slide %q changed on disk, reopening\n", name)
		s.handles.Remove(name)
		return nil
	}
	if h.closed {
		return nil
	}
	h.refs++
	return h
}

// pendingOpen counts the callers waiting on an open of a slide.  The opener
// takes their references before the handle becomes evictable.
type pendingOpen struct {
	waiters int
	h       *Handle
}

// claimPending hands the new handle to the callers waiting on it.  Must be called
// with s.mu held.
func (s *Store) claimPending(name string, h *Handle) {
	p, found := s.pending[name]
	if !found {
		return
	}
	h.refs += p.waiters
	p.h = h
	delete(s.pending, name)
}

// Get returns a referenced handle for the named slide, opening it if it is not
// cached or if the file changed since it was opened.  Concurrent requests for a
// slide that is not yet open share a single open.
func (s *Store) Get(name string) (*Handle, error) {
	atomic.AddUint64(&s.attempts, 1)
	path, fi, err := s.stat(name)
	if err != nil {
		return nil, err
	}
	for tries := 0; tries < 3; tries++ {
		s.mu.Lock()
		if h := s.acquire(name, fi); h != nil {
			s.mu.Unlock()
			atomic.AddUint64(&s.hits, 1)
			return h, nil
		}
		p, found := s.pending[name]
		if !found {
			p = &pendingOpen{}
			s.pending[name] = p
		}
		p.waiters++
		s.mu.Unlock()

		v, err := s.opening.Do(name, func() (interface{}, error) {
			return s.open(name, path, fi)
		})

		s.mu.Lock()
		if p.h != nil {
			h := p.h
			s.mu.Unlock()
			return h, nil
		}
		p.waiters--
		if p.waiters == 0 && s.pending[name] == p {
			delete(s.pending, name)
		}
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		// Joined an open that had already handed out its references.
		h := v.(*Handle)
		if !h.closed {
			h.refs++
			s.mu.Unlock()
			return h, nil
		}
		s.mu.Unlock()
	}
	return nil, wsi.IOError(fmt.Errorf("evicted during open"), "unable to hold slide %q", name)
}

// open opens the slide file and adds it to the handle cache.
func (s *Store) open(name, path string, fi os.FileInfo) (*Handle, error) {
	s.mu.Lock()
	if v, found := s.handles.Get(name); found {
		if h := v.(*Handle); h.current(fi) && !h.closed {
			s.claimPending(name, h)
			s.mu.Unlock()
			return h, nil
		}
	}
	s.mu.Unlock()

	timedLog := wsi.NewTimeLog()
	sl, err := slide.Open(s.backend, path)
	if err != nil {
		return nil, err
	}
	gen, err := deepzoom.New(sl, s.tiles)
	if err != nil {
		sl.Close()
		return nil, fmt.Errorf("slide %q: %w", name, err)
	}
	atomic.AddUint64(&s.opens, 1)
	h := &Handle{
		Name:      name,
		Slide:     sl,
		Generator: gen,
		ModTime:   fi.ModTime(),
		Size:      fi.Size(),
		store:     s,
	}
	w, ht := gen.Dimensions()
	if wsi.Verbose {
		timedLog.Debugf("Opened slide %q (%d x %d, %d levels, %s resident)", name, w, ht,
			gen.LevelCount(), residentBytes(sl))
	} else {
		timedLog.Infof("Opened slide %q (%d x %d, %s file)", name, w, ht, humanize.Bytes(uint64(h.Size)))
	}

	s.mu.Lock()
	if _, found := s.handles.Get(name); found {
		s.handles.Remove(name) // replacing would skip the eviction callback
	}
	s.claimPending(name, h)
	s.handles.Add(name, h)
	s.mu.Unlock()
	return h, nil
}

func residentBytes(sl slide.Slide) string {
	n := size.Of(sl)
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// NumOpen returns the number of slides in the handle cache.
func (s *Store) NumOpen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles.Len()
}
