// Package runlock serializes batch runs that share a history database.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"mediapack/internal/joberr"
)

const pollInterval = 50 * time.Millisecond

// Acquire takes an advisory lock on path, polling until timeout. The
// returned release func unlocks and is safe to call once. A timeout of
// zero tries exactly once.
func Acquire(path string, timeout time.Duration) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, joberr.Wrap(joberr.ErrResource, "runlock", "acquire", "create lock directory", err)
	}

	lock := flock.New(path)
	deadline := time.Now().Add(timeout)
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, joberr.Wrap(joberr.ErrResource, "runlock", "acquire", "try lock", err)
		}
		if ok {
			return func() { _ = lock.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return nil, joberr.Wrap(joberr.ErrResource, "runlock", "acquire",
				fmt.Sprintf("another run holds %s after %s", path, timeout), nil)
		}
		time.Sleep(pollInterval)
	}
}
