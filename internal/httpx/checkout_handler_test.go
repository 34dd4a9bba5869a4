package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KnyazyanNar/kasir-store/internal/checkout"
)

func TestCheckoutCreate_InvalidJSON(t *testing.T) {
	h := &CheckoutHandler{}

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCheckoutCreate_EmptyCart(t *testing.T) {
	// an empty cart is rejected before the service touches any dependency
	h := &CheckoutHandler{Checkout: &checkout.Service{}}

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{"items":[]}`))
	rec := httptest.NewRecorder()
	h.create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "error") {
		t.Errorf("expected an error body, got %s", rec.Body.String())
	}
}

func TestCheckoutVerify_MissingSessionID(t *testing.T) {
	h := &CheckoutHandler{}

	req := httptest.NewRequest(http.MethodGet, "/api/checkout/verify", nil)
	rec := httptest.NewRecorder()
	h.verify(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCheckoutStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{checkout.ErrEmptyCart, http.StatusBadRequest},
		{checkout.ErrInvalidItem, http.StatusBadRequest},
		{checkout.ErrProductNotFound, http.StatusBadRequest},
		{checkout.ErrProductInactive, http.StatusBadRequest},
		{checkout.ErrSizeUnavailable, http.StatusBadRequest},
		{checkout.ErrInsufficientStock, http.StatusBadRequest},
		{checkout.ErrNoSessionURL, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := checkoutStatus(c.err); got != c.want {
			t.Errorf("checkoutStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestBaseURL(t *testing.T) {
	newReq := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/checkout", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	cases := []struct {
		name    string
		origin  string
		siteURL string
		want    string
	}{
		{"origin wins", "https://shop.example", "https://configured.example", "https://shop.example"},
		{"origin trailing slash trimmed", "https://shop.example/", "", "https://shop.example"},
		{"site url fallback", "", "https://configured.example", "https://configured.example"},
		{"non-http origin ignored", "null", "https://configured.example", "https://configured.example"},
		{"localhost default", "", "", "http://localhost:3000"},
	}
	for _, c := range cases {
		if got := baseURL(newReq(c.origin), c.siteURL); got != c.want {
			t.Errorf("%s: baseURL = %q, want %q", c.name, got, c.want)
		}
	}
}
