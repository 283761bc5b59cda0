package imagestore

import (
	"context"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// lockRetryInterval is how often Cache retries a contended lock.
const lockRetryInterval = 50 * time.Millisecond

// Cache fetches imageID into target unless target already exists. Callers
// staging the same target are serialized on an exclusive lock on
// target+".lock", so the image is fetched at most once. Errors from the store
// are returned unchanged.
func Cache(ctx context.Context, store Store, target, imageID string, creds Credentials) error {
	if exists(target) {
		return nil
	}

	fl, err := acquireLock(ctx, target+".lock")
	if err != nil {
		return err
	}
	defer fl.Close()

	// another caller may have fetched it while we waited.
	if exists(target) {
		return nil
	}
	return store.Fetch(ctx, target, imageID, creds)
}

func acquireLock(ctx context.Context, path string) (*flock.Flock, error) {
	fl := flock.New(path)

	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, errors.Wrapf(err, "acquiring image lock %s", path)
	}
	if !locked {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "acquiring image lock %s", path)
		}
		return nil, errors.Errorf("acquiring image lock %s: lock not acquired", path)
	}
	return fl, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
