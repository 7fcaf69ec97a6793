// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package imageurl turns an uploaded image id into a URL clients can fetch.
package imageurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
)

// ErrNoURL means the backend answered but had no usable URL.
var ErrNoURL = errors.New("no serving url")

const (
	// ResolveTimeout bounds one ServingURL lookup.
	ResolveTimeout = time.Minute
	// SignedURLExpiry is how long a SignedURL stays valid.
	SignedURLExpiry = 7 * 24 * time.Hour

	maxBody = 4 << 10
)

type Resolver interface {
	Resolve(ctx context.Context, imageID string) (string, error)
}

// Static maps an image id to Base + "/" + id, or to the bare id when Base
// is empty.
type Static struct {
	Base string
}

func (s Static) Resolve(_ context.Context, imageID string) (string, error) {
	if imageID == "" {
		return "", ErrNoURL
	}
	if s.Base == "" {
		return imageID, nil
	}
	return strings.TrimSuffix(s.Base, "/") + "/" + url.PathEscape(imageID), nil
}

// ServingURL asks an HTTP endpoint for the image's serving URL with
// GET {endpoint}?path={bucket}/{imageID}. The endpoint answers with the URL
// as the plain body. Concurrent lookups of one image share a request.
type ServingURL struct {
	endpoint string
	bucket   string
	client   *http.Client
	flight   singleflight.Group
}

func NewServingURL(endpoint, bucket string, client *http.Client) *ServingURL {
	if client == nil {
		client = &http.Client{Timeout: ResolveTimeout}
	}
	return &ServingURL{endpoint: endpoint, bucket: bucket, client: client}
}

func (r *ServingURL) Resolve(ctx context.Context, imageID string) (string, error) {
	if imageID == "" {
		return "", ErrNoURL
	}
	v, err, _ := r.flight.Do(imageID, func() (any, error) {
		return r.fetch(ctx, imageID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *ServingURL) fetch(ctx context.Context, imageID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ResolveTimeout)
	defer cancel()

	path := imageID
	if r.bucket != "" {
		path = r.bucket + "/" + imageID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?path="+url.QueryEscape(path), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build serving url request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serving url request for %s: %w", imageID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read serving url for %s: %w", imageID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("serving url for %s: status %d", imageID, resp.StatusCode)
	}
	u := strings.TrimSpace(string(body))
	if !strings.HasPrefix(u, "http") {
		return "", fmt.Errorf("%w: %s", ErrNoURL, imageID)
	}
	return u, nil
}

// SignedURL signs a GET URL for the object imageID in a Cloud Storage
// bucket.
type SignedURL struct {
	client *storage.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewSignedURL opens a storage client. credentialsFile may be empty to use
// the ambient credentials.
func NewSignedURL(ctx context.Context, bucket, credentialsFile string) (*SignedURL, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &SignedURL{client: client, bucket: bucket, expiry: SignedURLExpiry, now: time.Now}, nil
}

func (s *SignedURL) Resolve(_ context.Context, imageID string) (string, error) {
	if imageID == "" {
		return "", ErrNoURL
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(imageID, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: s.now().Add(s.expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for gs://%s/%s: %w", s.bucket, imageID, err)
	}
	return u, nil
}

func (s *SignedURL) Close() error {
	return s.client.Close()
}
