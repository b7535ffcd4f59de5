package checkpoint

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/storage"
)

// S3Store keeps the checkpoint document as one object.
type S3Store struct {
	client storage.API
	bucket string
	key    string
}

// NewS3Store returns a store writing bucket/key.
func NewS3Store(client storage.API, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Load reads the object. A missing object is an empty set.
func (s *S3Store) Load(ctx context.Context) (map[string]struct{}, error) {
	data, err := storage.GetFile(ctx, s.client, s.bucket, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Save overwrites the object with the full set.
func (s *S3Store) Save(ctx context.Context, processed map[string]struct{}) error {
	data, err := encode(processed)
	if err != nil {
		return err
	}
	return storage.PutFile(ctx, s.client, s.bucket, s.key, "application/json", data)
}
