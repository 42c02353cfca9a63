package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func padTo(data []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, data)
	return out
}

func TestIntakeAcceptsPNG(t *testing.T) {
	reg := NewRegistry()
	data := padTo(encodePNG(t, 64, 48), 2*1024*1024)

	img, err := reg.Intake("photo.png", "", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Width != 64 || img.Height != 48 {
		t.Errorf("dimensions = %s, want 64x48", img.Dimensions())
	}
	if img.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", img.MIMEType)
	}
	if img.Size != 2*1024*1024 {
		t.Errorf("Size = %d, want %d", img.Size, 2*1024*1024)
	}
	if img.URL == "" || img.Handle == "" {
		t.Error("expected a registered display handle")
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
	if got, ok := reg.Lookup(img.URL); !ok || got != img {
		t.Error("Lookup did not resolve the live handle")
	}
}

func TestIntakeRejectsLargeAndGIFDistinctly(t *testing.T) {
	reg := NewRegistry()

	large := padTo(encodePNG(t, 8, 8), 15*1024*1024)
	_, errLarge := reg.Intake("big.png", "image/png", large)
	if !errors.Is(errLarge, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", errLarge)
	}

	var buf bytes.Buffer
	if err := gif.Encode(&buf, image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White}), nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	_, errGIF := reg.Intake("anim.gif", "", buf.Bytes())
	if !errors.Is(errGIF, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", errGIF)
	}

	if errLarge.Error() == errGIF.Error() {
		t.Error("expected distinct error messages")
	}
	if reg.Len() != 0 {
		t.Errorf("rejected uploads must not register handles, Len() = %d", reg.Len())
	}
}

func TestIntakeRejectsUndecodable(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Intake("broken.jpg", "image/jpeg", []byte("not really a jpeg"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestRelease(t *testing.T) {
	reg := NewRegistry()
	img, err := reg.Intake("a.png", "", encodePNG(t, 4, 4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reg.Release(img) {
		t.Error("first Release should report a live handle")
	}
	if reg.Release(img) {
		t.Error("second Release should be a no-op")
	}
	if _, ok := reg.Lookup(img.URL); ok {
		t.Error("released handle still resolves")
	}
	if reg.Release(nil) {
		t.Error("Release(nil) should be a no-op")
	}
}

func TestDetectMIMEType(t *testing.T) {
	jpg := func() []byte {
		var buf bytes.Buffer
		_ = jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)), nil)
		return buf.Bytes()
	}()

	tests := []struct {
		name, file, declared string
		data                 []byte
		want                 string
	}{
		{"declared wins", "x.bin", "image/webp", nil, "image/webp"},
		{"declared with params", "x", "image/png; charset=binary", nil, "image/png"},
		{"sniffed", "x", "", jpg, "image/jpeg"},
		{"extension fallback", "x.webp", "application/octet-stream", []byte{0, 1, 2}, "image/webp"},
		{"unknown", "x.bin", "", []byte{0, 1, 2}, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIMEType(tt.file, tt.declared, tt.data); got != tt.want {
				t.Errorf("DetectMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestThumbnail(t *testing.T) {
	img, err := Decode("wide.png", "image/png", encodePNG(t, 800, 400))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, mime, err := Thumbnail(img, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/jpeg" {
		t.Errorf("mime = %q", mime)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("thumbnail = %dx%d, want 200x100", cfg.Width, cfg.Height)
	}
}

func TestThumbnailSize(t *testing.T) {
	tests := []struct{ w, h, max, wantW, wantH int }{
		{100, 50, 200, 100, 50},
		{1024, 768, 512, 512, 384},
		{768, 1024, 512, 384, 512},
		{5000, 1, 100, 100, 1},
	}
	for _, tt := range tests {
		w, h := ThumbnailSize(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("ThumbnailSize(%d,%d,%d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestMetadataSummary(t *testing.T) {
	var nilMeta *Metadata
	if nilMeta.Summary() != "" {
		t.Error("nil metadata should summarise to empty string")
	}
	m := &Metadata{CameraMake: "Apple", CameraModel: "iPhone 15 Pro"}
	if got := m.Summary(); got != "Apple iPhone 15 Pro" {
		t.Errorf("Summary() = %q", got)
	}
}
