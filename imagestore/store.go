// Package imagestore stages bitstream images onto local storage.
package imagestore

import (
	"context"
	"fmt"
)

// Credentials identify the tenant on whose behalf an image is fetched.
type Credentials struct {
	UserID    string
	ProjectID string
	Token     string
}

// Store fetches images by id.
type Store interface {
	// Fetch writes the image identified by imageID to target. Implementations
	// must not leave a partial file at target when they fail.
	Fetch(ctx context.Context, target, imageID string, creds Credentials) error
}

// FetchError is returned by stores when an image cannot be fetched.
type FetchError struct {
	ImageID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("imagestore: fetching image %s: %v", e.ImageID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
