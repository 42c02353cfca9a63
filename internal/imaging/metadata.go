package imaging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
)

// Metadata is the subset of EXIF the editor surfaces next to an upload.
type Metadata struct {
	CameraMake  string    `json:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty"`
	DateTaken   time.Time `json:"dateTaken,omitempty"`
	HasDate     bool      `json:"hasDate"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	HasGPS      bool      `json:"hasGps"`
}

// ExtractMetadata reads EXIF from an image stream. PNG and WebP uploads
// usually carry none, in which case an error is returned and the caller
// proceeds without metadata.
func ExtractMetadata(r io.ReadSeeker) (*Metadata, error) {
	exifData, err := imagemeta.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode EXIF: %w", err)
	}

	meta := &Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	for _, ts := range []time.Time{exifData.DateTimeOriginal(), exifData.CreateDate(), exifData.ModifyDate()} {
		if !ts.IsZero() {
			meta.DateTaken = ts
			meta.HasDate = true
			break
		}
	}

	if lat, lon := exifData.GPS.Latitude(), exifData.GPS.Longitude(); lat != 0 || lon != 0 {
		meta.Latitude = lat
		meta.Longitude = lon
		meta.HasGPS = true
	}

	return meta, nil
}

// Summary renders the metadata as a short single line for CLI output.
func (m *Metadata) Summary() string {
	if m == nil {
		return ""
	}
	var parts []string
	if camera := strings.TrimSpace(m.CameraMake + " " + m.CameraModel); camera != "" {
		parts = append(parts, camera)
	}
	if m.HasDate {
		parts = append(parts, m.DateTaken.Format("2006-01-02 15:04"))
	}
	if m.HasGPS {
		parts = append(parts, fmt.Sprintf("%.5f,%.5f", m.Latitude, m.Longitude))
	}
	return strings.Join(parts, " • ")
}
