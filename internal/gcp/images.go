package gcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/MichaelPesce/orphaned-wells-ui-server/internal/models"
)

// SignedURLResolver issues V4 signed GET URLs for a record's page files.
// URLs are cached for part of their lifetime so repeated fetches reuse them.
type SignedURLResolver struct {
	sign   func(object string, opts *storage.SignedURLOptions) (string, error)
	expiry time.Duration
	cache  *cache.Cache
	now    func() time.Time
}

// NewSignedURLResolver signs objects in bucket with the given URL lifetime.
func NewSignedURLResolver(bucket *storage.BucketHandle, expiry time.Duration) *SignedURLResolver {
	return newSignedURLResolver(bucket.SignedURL, expiry)
}

func newSignedURLResolver(sign func(string, *storage.SignedURLOptions) (string, error), expiry time.Duration) *SignedURLResolver {
	ttl := expiry * 3 / 4
	return &SignedURLResolver{
		sign:   sign,
		expiry: expiry,
		cache:  cache.New(ttl, 2*ttl),
		now:    time.Now,
	}
}

// ImageURLs returns one signed URL per image file, in order.
func (r *SignedURLResolver) ImageURLs(ctx context.Context, rec *models.Record) ([]string, error) {
	urls := make([]string, len(rec.ImageFiles))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(10)

	for i, object := range rec.ImageFiles {
		eg.Go(func() error {
			if cached, ok := r.cache.Get(object); ok {
				urls[i] = cached.(string)
				return nil
			}
			url, err := r.sign(object, &storage.SignedURLOptions{
				Scheme:  storage.SigningSchemeV4,
				Method:  http.MethodGet,
				Expires: r.now().Add(r.expiry),
			})
			if err != nil {
				return fmt.Errorf("failed to sign %s: %w", object, err)
			}
			r.cache.SetDefault(object, url)
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
