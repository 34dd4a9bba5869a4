package media

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"
)

// Uploaded identifies a stored image both by its public URL and by the
// storage-side id needed to delete it later.
type Uploaded struct {
	URL      string
	PublicID string
}

type Uploader interface {
	Upload(ctx context.Context, file io.Reader) (*Uploaded, error)
	Delete(ctx context.Context, publicID string) error
}

// AllowedImageType reports whether an upload content type is accepted.
func AllowedImageType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	}
	return false
}

// PublicIDFromURL recovers the storage public id (folder/name, no extension)
// from a delivery URL. Returns "" when the URL does not look like one of
// ours; callers treat storage cleanup as best effort anyway.
func PublicIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	name := parts[len(parts)-1]
	name = strings.TrimSuffix(name, path.Ext(name))
	return parts[len(parts)-2] + "/" + name
}
