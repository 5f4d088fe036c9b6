// Package media handles object storage for photos, transcoded video and
// avatars, plus the single-flight download path used by story viewing.
package media

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
)

// FileStore is the object storage gateway. Keys are content-derived paths;
// Store returns the public url serving the object.
type FileStore interface {
	Store(ctx context.Context, key string, body io.Reader) (publicUrl string, err error)
	GetUrlFromKey(key string) string
	CleanUp()
}

// KeyForUpload derives a fresh storage key under the owner's prefix,
// keeping the extension so the CDN serves the right content type.
func KeyForUpload(ownerId, fileName string) string {
	return "media/" + ownerId + "/" + uuid.New().String() + strings.ToLower(extWithDot(fileName))
}

func extWithDot(fileName string) string {
	for i := len(fileName) - 1; i >= 0; i-- {
		switch fileName[i] {
		case '.':
			return fileName[i:]
		case '/':
			return ""
		}
	}
	return ""
}
