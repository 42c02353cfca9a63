package imaging

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const handleScheme = "blob:"

// Registry tracks live display handles. A handle is created when an upload
// is admitted and must be released when the image is replaced or cleared.
type Registry struct {
	mu   sync.Mutex
	live map[string]*Image
}

// NewRegistry returns an empty handle registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Image)}
}

// Intake validates and decodes an upload and registers a display handle for
// it. Nothing is registered when validation or decoding fails.
func (r *Registry) Intake(filename, declaredType string, data []byte) (*Image, error) {
	mimeType := DetectMIMEType(filename, declaredType, data)
	if err := Validate(mimeType, int64(len(data))); err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("Upload rejected")
		return nil, err
	}

	img, err := Decode(filename, mimeType, data)
	if err != nil {
		log.Warn().Err(err).Str("file", filename).Msg("Upload could not be decoded")
		return nil, err
	}

	handle := uuid.NewString()
	img.Handle = handle
	img.URL = handleScheme + handle

	r.mu.Lock()
	r.live[handle] = img
	r.mu.Unlock()

	log.Info().
		Str("file", filename).
		Str("mime", mimeType).
		Str("dimensions", img.Dimensions()).
		Int64("bytes", img.Size).
		Msg("Image admitted")
	return img, nil
}

// Release drops the handle behind img. It reports whether a live handle was
// released; releasing twice is harmless.
func (r *Registry) Release(img *Image) bool {
	if img == nil || img.Handle == "" {
		return false
	}
	r.mu.Lock()
	_, ok := r.live[img.Handle]
	delete(r.live, img.Handle)
	r.mu.Unlock()
	if ok {
		log.Debug().Str("handle", img.Handle).Msg("Image handle released")
	}
	return ok
}

// Lookup resolves a display URL to its image while the handle is live.
func (r *Registry) Lookup(url string) (*Image, bool) {
	handle, ok := strings.CutPrefix(url, handleScheme)
	if !ok {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.live[handle]
	return img, ok
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
