package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/nfrund/chatroom/internal/config"
	"github.com/nfrund/chatroom/internal/logging"
)

// ConfigForBackend loads .env.test from the project root, selects the given
// storage backend and returns the resulting config. The test is skipped in
// short mode or when the backend is not configured.
func ConfigForBackend(t *testing.T, backend string) *config.Config {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	if root, ok := projectRoot(); ok {
		// A missing .env.test just means the environment must carry the values.
		if env, err := godotenv.Read(filepath.Join(root, ".env.test")); err == nil {
			for key, value := range env {
				t.Setenv(key, value)
			}
		}
	}
	if os.Getenv("SESSION_SECRET") == "" {
		t.Setenv("SESSION_SECRET", "integration")
	}
	t.Setenv("STORAGE_BACKEND", backend)

	logging.New()

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("%s backend not configured: %v", backend, err)
	}
	return cfg
}

// projectRoot walks up from the working directory to the directory holding go.mod.
func projectRoot() (string, bool) {
	path, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(path, "go.mod")); err == nil {
			return path, true
		}
		if path == filepath.Dir(path) {
			return "", false
		}
		path = filepath.Dir(path)
	}
}
