package imagestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/savi/fpgavirt/ioutils"
)

// DirStore serves images from a local directory where each image is a file
// named after its id. Credentials are ignored.
type DirStore struct {
	Root string
}

// Fetch implements Store.
func (s DirStore) Fetch(ctx context.Context, target, imageID string, _ Credentials) error {
	if imageID == "" || filepath.Base(imageID) != imageID {
		return &FetchError{ImageID: imageID, Err: errors.New("invalid image id")}
	}

	src, err := os.Open(filepath.Join(s.Root, imageID))
	if err != nil {
		return &FetchError{ImageID: imageID, Err: err}
	}
	defer src.Close()

	if _, err := ioutils.AtomicWriteFile(target, &ctxReader{ctx: ctx, r: src}, 0o644); err != nil {
		return &FetchError{ImageID: imageID, Err: errors.Wrap(err, "copy image")}
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   *os.File
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
