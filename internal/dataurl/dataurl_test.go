package dataurl

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeEncoded(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0x01}
	url := Encode("image/png", payload)
	if url != "data:image/png;base64,iVBORwAB" {
		t.Errorf("Encode() = %q", url)
	}

	mime, data, err := Decode(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("data = %v, want %v", data, payload)
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, in := range []string{
		"blob:1234",
		"data:image/png;base64",
		"data:text/plain,hello",
		"data:image/png;base64,!!!",
	} {
		if _, _, err := Decode(in); !errors.Is(err, ErrInvalid) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage("data:image/jpeg;base64,AAAA") {
		t.Error("expected image data URL")
	}
	if IsImage("data:text/plain;base64,AAAA") {
		t.Error("text data URL reported as image")
	}
}
