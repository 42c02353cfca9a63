package cli

import (
	"fmt"
	"time"

	"github.com/fpang/ai-image-editor/internal/chat"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatBytes renders a byte count with a binary unit (512 B, 1.5 KB, 2.0 MB).
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}

// CategoryLabel is the display label for a suggestion category.
func CategoryLabel(c chat.Category) string {
	switch c {
	case chat.CategoryFix:
		return "fix"
	case chat.CategoryRemoval:
		return "remove"
	case chat.CategoryStyle:
		return "style"
	default:
		return "enhance"
	}
}
