package imagestore

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/savi/fpgavirt/ioutils"
	"github.com/savi/fpgavirt/log"
	"github.com/sirupsen/logrus"
)

// HTTPStore downloads image data from an image service speaking the
// OpenStack image API (GET /v2/images/<id>/file).
type HTTPStore struct {
	endpoint string
	client   *http.Client
	logger   *logrus.Entry
}

// NewHTTPStore returns a store rooted at endpoint. A nil client uses
// http.DefaultClient.
func NewHTTPStore(endpoint string, client *http.Client, logger *logrus.Entry) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   client,
		logger:   log.OrDiscard(logger),
	}
}

// Fetch implements Store.
func (s *HTTPStore) Fetch(ctx context.Context, target, imageID string, creds Credentials) error {
	u := s.endpoint + "/v2/images/" + url.PathEscape(imageID) + "/file"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &FetchError{ImageID: imageID, Err: err}
	}
	if creds.Token != "" {
		req.Header.Set("X-Auth-Token", creds.Token)
	}
	if creds.ProjectID != "" {
		req.Header.Set("X-Project-Id", creds.ProjectID)
	}
	if creds.UserID != "" {
		req.Header.Set("X-User-Id", creds.UserID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &FetchError{ImageID: imageID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{ImageID: imageID, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	n, err := ioutils.AtomicWriteFile(target, resp.Body, 0o644)
	if err != nil {
		return &FetchError{ImageID: imageID, Err: errors.Wrap(err, "write image")}
	}

	s.logger.WithFields(logrus.Fields{
		"image":  imageID,
		"target": target,
		"bytes":  n,
	}).Debug("image downloaded")
	return nil
}
