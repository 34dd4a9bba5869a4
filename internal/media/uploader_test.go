package media

import "testing"

func TestAllowedImageType(t *testing.T) {
	cases := []struct {
		contentType string
		want        bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/webp", true},
		{"image/gif", true},
		{"image/svg+xml", false},
		{"application/pdf", false},
		{"text/html", false},
		{"", false},
	}
	for _, c := range cases {
		if got := AllowedImageType(c.contentType); got != c.want {
			t.Errorf("AllowedImageType(%q) = %v, want %v", c.contentType, got, c.want)
		}
	}
}

func TestPublicIDFromURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1700000000/kasir-products/abc123.jpg", "kasir-products/abc123"},
		{"https://res.cloudinary.com/demo/image/upload/kasir-products/abc123.webp", "kasir-products/abc123"},
		{"https://example.com/plain", ""},
		{"://not-a-url", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := PublicIDFromURL(c.url); got != c.want {
			t.Errorf("PublicIDFromURL(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}
