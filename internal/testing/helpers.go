package testing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/config"
)

// TB is the part of testing.TB the helpers need. It is satisfied by
// *testing.T and by ginkgo.GinkgoT().
type TB interface {
	Helper()
	TempDir() string
	Cleanup(func())
	Errorf(format string, args ...any)
	FailNow()
	Log(args ...any)
}

// TestContext returns a context cancelled when the test ends.
func TestContext(t TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestLogger returns a logger writing to the test log.
func TestLogger(t TB) logr.Logger {
	t.Helper()
	return testr.NewWithInterface(t, testr.Options{Verbosity: 1})
}

// FastTimeouts returns timeouts short enough for tests.
func FastTimeouts() *config.Timeouts {
	return &config.Timeouts{
		Init:              5 * time.Second,
		Validate:          5 * time.Second,
		Plan:              5 * time.Second,
		Apply:             5 * time.Second,
		Destroy:           5 * time.Second,
		Credentials:       time.Second,
		Ping:              time.Second,
		Probe:             time.Second,
		RetryMaxAttempts:  1,
		RetryInitialDelay: time.Millisecond,
	}
}

// FixedClock returns a time source that always reports at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// TreeDigest maps every regular file under root, relative to root, to the
// SHA-256 of its content.
func TreeDigest(t TB, root string) map[string]string {
	t.Helper()
	digests := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		digests[rel] = hex.EncodeToString(sum[:])
		return nil
	})
	require.NoError(t, err)
	return digests
}
