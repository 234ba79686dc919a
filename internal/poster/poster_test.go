package poster

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestImageURL(t *testing.T) {
	cases := []struct {
		name string
		path string
		size string
		want string
	}{
		{"先頭スラッシュあり", "/abc123.jpg", SizeMedium, "https://image.tmdb.org/t/p/w500/abc123.jpg"},
		{"先頭スラッシュなし", "abc123.jpg", SizeMedium, "https://image.tmdb.org/t/p/w500/abc123.jpg"},
		{"サイズ未指定は既定値", "/abc123.jpg", "", "https://image.tmdb.org/t/p/w500/abc123.jpg"},
		{"オリジナルサイズ", "/abc123.jpg", SizeOriginal, "https://image.tmdb.org/t/p/original/abc123.jpg"},
		{"空パス", "", SizeMedium, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ImageURL(tc.path, tc.size); got != tc.want {
				t.Errorf("ImageURL(%q, %q) = %q, want %q", tc.path, tc.size, got, tc.want)
			}
		})
	}
}

// mockSSRFGuard はテスト用のSSRF検証。
type mockSSRFGuard struct {
	validateFunc func(rawURL string) error
	client       *http.Client
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	if m.validateFunc != nil {
		return m.validateFunc(rawURL)
	}
	return nil
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	if m.client != nil {
		return m.client
	}
	return &http.Client{Timeout: timeout}
}

func TestFetcher_Fetch_BlockedURLReturnsNil(t *testing.T) {
	guard := &mockSSRFGuard{
		validateFunc: func(rawURL string) error {
			return errors.New("ブロック対象のURLです")
		},
	}

	f := NewFetcher(guard, newTestLogger(), 0, 0)

	data, mime, err := f.Fetch(context.Background(), "/abc.jpg", SizeSmall)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("ブロック時の戻り値 = (%v, %q), want (nil, \"\")", data, mime)
	}
}

func TestFetcher_Fetch_EmptyPathReturnsNil(t *testing.T) {
	f := NewFetcher(nil, newTestLogger(), 0, 0)

	data, mime, err := f.Fetch(context.Background(), "", SizeSmall)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("空パスの戻り値 = (%v, %q), want (nil, \"\")", data, mime)
	}
}

func TestExtractMimeType(t *testing.T) {
	cases := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "image/jpeg"},
		{"image/png; charset=binary", "image/png"},
		{"IMAGE/JPEG", "image/jpeg"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := extractMimeType(tc.contentType); got != tc.want {
			t.Errorf("extractMimeType(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}

func TestIsImageMime(t *testing.T) {
	if !isImageMime("image/jpeg") {
		t.Error("image/jpeg は画像と判定されるべき")
	}
	if isImageMime("text/html") {
		t.Error("text/html は画像と判定されてはならない")
	}
}

func newStubFetcher(serverURL string, client *http.Client) *Fetcher {
	f := NewFetcher(&mockSSRFGuard{client: client}, newTestLogger(), 0, 0)
	f.baseURL = serverURL + "/t/p/"
	return f
}

func TestFetcher_Fetch_ReturnsImageData(t *testing.T) {
	imageBytes := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/t/p/w200/abc.jpg" {
			t.Errorf("パス = %s, want /t/p/w200/abc.jpg", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(imageBytes)
	}))
	defer server.Close()

	f := newStubFetcher(server.URL, server.Client())

	data, mime, err := f.Fetch(context.Background(), "/abc.jpg", SizeSmall)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if !bytes.Equal(data, imageBytes) {
		t.Errorf("データ = %v, want %v", data, imageBytes)
	}
	if mime != "image/jpeg" {
		t.Errorf("MIME = %q, want image/jpeg", mime)
	}
}

func TestFetcher_Fetch_NonImageContentTypeReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>エラーページ</html>"))
	}))
	defer server.Close()

	f := newStubFetcher(server.URL, server.Client())

	data, mime, err := f.Fetch(context.Background(), "/abc.jpg", SizeSmall)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("戻り値 = (%v, %q), want (nil, \"\")", data, mime)
	}
}

func TestFetcher_Fetch_OversizedImageReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(bytes.Repeat([]byte{0x00}, 100))
	}))
	defer server.Close()

	f := newStubFetcher(server.URL, server.Client())
	f.maxSize = 50

	data, mime, err := f.Fetch(context.Background(), "/big.png", SizeOriginal)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("サイズ超過の戻り値 = (%v, %q), want (nil, \"\")", data, mime)
	}
}

func TestFetcher_Fetch_ErrorStatusReturnsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newStubFetcher(server.URL, server.Client())

	data, mime, err := f.Fetch(context.Background(), "/missing.jpg", SizeSmall)
	if err != nil {
		t.Fatalf("Fetch がエラーを返した: %v", err)
	}
	if data != nil || mime != "" {
		t.Errorf("404時の戻り値 = (%v, %q), want (nil, \"\")", data, mime)
	}
}
