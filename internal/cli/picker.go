package cli

import (
	"errors"

	"github.com/ncruces/zenity"
)

// ErrCanceled is returned when the user dismisses the file picker.
var ErrCanceled = errors.New("file selection canceled")

// PickImage opens the native file dialog filtered to supported image types
// and returns the chosen path.
func PickImage() (string, error) {
	path, err := zenity.SelectFile(
		zenity.Title("Select an image to edit"),
		zenity.FileFilters{
			{
				Name:     "Images",
				Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.webp"},
			},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		return "", err
	}
	return path, nil
}
