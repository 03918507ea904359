package storage

import "io"

// BlobStore holds generated artifacts (SEB config exports, question
// images referenced by image_url).
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
