//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestMain terminates the shared container after the package has run
func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = container.Terminate(ctx)
		cancel()
	}
	os.Exit(code)
}
