package main

import (
	"context"
	"strings"
	"testing"

	"github.com/janelia-flyem/wsiview/datastore"
	"github.com/janelia-flyem/wsiview/slide"
	"github.com/janelia-flyem/wsiview/wsi"
)

// The executable only offers real slide backends.
func TestBackends(t *testing.T) {
	if _, err := slide.GetBackend(datastore.TestBackendName); err == nil {
		t.Errorf("Test backend %q registered outside of tests\n", datastore.TestBackendName)
	}
	text := datastore.Versions()
	if strings.Contains(text, datastore.TestBackendName) {
		t.Errorf("Versions lists the test backend:\n%s", text)
	}
	if !strings.Contains(text, "image") {
		t.Errorf("Versions missing image backend:\n%s", text)
	}
}

func TestDoCommand(t *testing.T) {
	ctx := context.Background()
	if err := DoCommand(ctx, wsi.Command{"about"}); err != nil {
		t.Errorf("about failed: %v\n", err)
	}
	if err := DoCommand(ctx, wsi.Command{}); err == nil {
		t.Errorf("Expected error on blank command\n")
	}
	if err := DoCommand(ctx, wsi.Command{"bogus"}); err == nil {
		t.Errorf("Expected error on unknown command\n")
	}
	if err := DoCommand(ctx, wsi.Command{"convert", t.TempDir()}); err == nil {
		t.Errorf("Expected error on convert without output\n")
	}
}
