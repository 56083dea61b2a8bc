package media

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.png", pngHeader)
	b := writeFile(t, dir, "b.gif", []byte("GIF89a\x01\x00\x01\x00"))

	images, err := LoadFiles(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].MIMEType != "image/png" {
		t.Errorf("first MIME = %q, want image/png", images[0].MIMEType)
	}
	if images[1].MIMEType != "image/gif" {
		t.Errorf("second MIME = %q, want image/gif", images[1].MIMEType)
	}
	if !strings.HasPrefix(images[0].DataURL(), "data:image/png;base64,") {
		t.Errorf("unexpected data URL prefix: %.40s", images[0].DataURL())
	}
}

func TestLoadFilesErrors(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", []byte("just some text"))
	img := writeFile(t, dir, "a.png", pngHeader)

	if _, err := LoadFiles(context.Background(), []string{txt}); !errors.Is(err, ErrNotImage) {
		t.Errorf("expected ErrNotImage, got %v", err)
	}
	if _, err := LoadFiles(context.Background(), []string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("expected error for missing file")
	}
	six := []string{img, img, img, img, img, img}
	if _, err := LoadFiles(context.Background(), six); !errors.Is(err, ErrTooManyImages) {
		t.Errorf("expected ErrTooManyImages, got %v", err)
	}
}

func TestNewImageTooLarge(t *testing.T) {
	data := make([]byte, MaxImageBytes+1)
	copy(data, pngHeader)
	if _, err := NewImage("big.png", data); !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("expected ErrImageTooLarge, got %v", err)
	}
}

func TestFromMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("images", "photo.png")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(pngHeader)
	if _, err := mw.CreateFormFile("images", ""); err != nil {
		t.Fatalf("CreateFormFile empty: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/recap", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}

	images, err := FromMultipart(context.Background(), req.MultipartForm.File["images"])
	if err != nil {
		t.Fatalf("FromMultipart: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected 1 image (empty input skipped), got %d", len(images))
	}
	if images[0].Name != "photo.png" {
		t.Errorf("Name = %q, want photo.png", images[0].Name)
	}
}

func TestNormalizeURLs(t *testing.T) {
	got, err := NormalizeURLs([]string{" https://go.dev/doc ", "", "http://example.com/a?b=c"})
	if err != nil {
		t.Fatalf("NormalizeURLs: %v", err)
	}
	want := []string{"https://go.dev/doc", "http://example.com/a?b=c"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeURLs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d = %q, want %q", i, got[i], want[i])
		}
	}

	for _, bad := range []string{"ftp://example.com", "/relative/path", "https://"} {
		if _, err := NormalizeURLs([]string{bad}); err == nil {
			t.Errorf("NormalizeURLs(%q) expected error", bad)
		}
	}

	many := []string{"https://a.io", "https://b.io", "https://c.io", "https://d.io", "https://e.io", "https://f.io"}
	if _, err := NormalizeURLs(many); !errors.Is(err, ErrTooManyURLs) {
		t.Errorf("expected ErrTooManyURLs, got %v", err)
	}
}
