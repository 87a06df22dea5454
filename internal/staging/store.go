// Package staging holds uploaded bytes between submission and processing.
// Objects live here only transiently: the file task downloads, processes and
// then deletes them (store-forward-process-delete).
package staging

import "context"

type Store interface {
	Upload(ctx context.Context, path string, data []byte) error
	Download(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}
