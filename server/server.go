package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/wsi"
)

const (
	// DefaultReadTimeout bounds the time to read a request.
	DefaultReadTimeout = 1 * time.Minute

	// DefaultWriteTimeout bounds the time to write a response.  Tiles from an
	// uncached slide may need the slide to be opened first.
	DefaultWriteTimeout = 5 * time.Minute
)

func secondsOr(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

// Serve listens on the configured address until the context is cancelled, then
// gives in-flight requests the configured shutdown delay to finish and closes the
// datastore.
func (s *Server) Serve(ctx context.Context) error {
	address := s.config.Server.HTTPAddress
	if address == "" {
		address = DefaultWebAddress
	}
	src := &http.Server{
		Addr:         address,
		Handler:      s,
		ReadTimeout:  secondsOr(s.config.Server.ReadTimeout, DefaultReadTimeout),
		WriteTimeout: secondsOr(s.config.Server.WriteTimeout, DefaultWriteTimeout),
	}
	defer s.store.Close()

	errCh := make(chan error, 1)
	go func() {
		wsi.Infof("Web server listening at %s ...\n", address)
		errCh <- src.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	delay := s.config.ShutdownDelay()
	wsi.Infof("Shutting down web server, waiting up to %s for requests ...\n", delay)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), delay)
	defer cancel()
	if err := src.Shutdown(shutdownCtx); err != nil {
		wsi.Errorf("Web server did not shut down cleanly: %v\n", err)
		src.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	wsi.Infof("%s\n", s.stats())
	return nil
}

// stats summarizes slide handle and encoded tile cache use.
func (s *Server) stats() string {
	opens, attempts, hits := s.store.Stats()
	tileHits, tileMisses := s.store.TileCacheStats()
	return fmt.Sprintf("Served %d slide requests with %d opens and %d cache hits; tile cache %d hits, %d misses",
		attempts, opens, hits, tileHits, tileMisses)
}

// Run loads slides according to the configuration and serves them until the context
// is cancelled.
func Run(ctx context.Context, config *Config) error {
	storeConfig, err := config.StoreConfig()
	if err != nil {
		return err
	}
	store, err := datastore.New(storeConfig)
	if err != nil {
		return err
	}
	s, err := New(config, store)
	if err != nil {
		store.Close()
		return err
	}
	return s.Serve(ctx)
}
