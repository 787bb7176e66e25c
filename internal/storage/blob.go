package storage

import "context"

// BlobStore is the opaque file store backing message attachments. Store
// returns an opaque path later handed back to Delete and Exists. Delete
// is idempotent: deleting a missing path is not an error.
type BlobStore interface {
	Store(ctx context.Context, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

var extByContentType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"application/pdf": ".pdf",
}

func extensionFor(contentType string) string {
	if ext, ok := extByContentType[contentType]; ok {
		return ext
	}
	return ".bin"
}
