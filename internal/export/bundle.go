package export

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/history"
)

// ZipMethodZstd is the ZIP compression method ID for Zstandard.
const ZipMethodZstd uint16 = 93

var registerOnce sync.Once

func registerZstd() {
	registerOnce.Do(func() {
		zip.RegisterCompressor(ZipMethodZstd, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
		})
		zip.RegisterDecompressor(ZipMethodZstd, func(r io.Reader) io.ReadCloser {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return io.NopCloser(errReader{err})
			}
			return dec.IOReadCloser()
		})
	})
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// ManifestName is the name of the JSON manifest inside a history bundle.
const ManifestName = "history.json"

// ManifestEntry describes one history step in the bundle manifest.
type ManifestEntry struct {
	Step        int       `json:"step"`
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	Timestamp   time.Time `json:"timestamp"`
	File        string    `json:"file"`
}

// WriteHistoryBundle writes a ZIP containing the result image of every entry
// (step-01.png, step-02.png, ...) and a history.json manifest. Entries with
// an unreadable result are skipped.
func WriteHistoryBundle(w io.Writer, entries []history.Entry) error {
	registerZstd()

	zw := zip.NewWriter(w)
	manifest := make([]ManifestEntry, 0, len(entries))

	for i, e := range entries {
		r, err := DecodeDataURL(e.AfterURL)
		if err != nil {
			log.Warn().Err(err).Str("entry", e.ID).Msg("Skipping history entry with invalid result")
			continue
		}
		name := fmt.Sprintf("step-%02d%s", i+1, r.Ext())
		if err := writeEntry(zw, name, e.Timestamp, r.Data); err != nil {
			return err
		}
		manifest = append(manifest, ManifestEntry{
			Step:        i + 1,
			ID:          e.ID,
			Instruction: e.Instruction,
			Timestamp:   e.Timestamp,
			File:        name,
		})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := writeEntry(zw, ManifestName, time.Now(), data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close ZIP writer: %w", err)
	}
	log.Debug().Int("entries", len(manifest)).Msg("History bundle written")
	return nil
}

func writeEntry(zw *zip.Writer, name string, modTime time.Time, data []byte) error {
	header := &zip.FileHeader{
		Name:   name,
		Method: ZipMethodZstd,
	}
	header.SetModTime(modTime)
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create ZIP entry for %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write to ZIP for %s: %w", name, err)
	}
	return nil
}
