package utils

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultQuality is used when a listing gives no quality
const DefaultQuality = "HD"

// NormalizeQuality maps listing quality labels to the display set
func NormalizeQuality(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return DefaultQuality
	}

	lower := strings.ToLower(q)
	switch {
	case strings.Contains(lower, "2160") || strings.Contains(lower, "4k") || strings.Contains(lower, "uhd"):
		return "4K"
	case strings.Contains(lower, "cam") || lower == "ts" || strings.Contains(lower, "telesync"):
		return "CAM"
	case strings.Contains(lower, "1080") || strings.Contains(lower, "720") || lower == "hd":
		return "HD"
	case strings.Contains(lower, "480") || lower == "sd":
		return "SD"
	}
	return strings.ToUpper(q)
}

// FormatRuntime renders minutes as "2h 28m"; zero gives ""
func FormatRuntime(minutes int) string {
	if minutes <= 0 {
		return ""
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// YearFromDate returns the year part of a YYYY-MM-DD date
func YearFromDate(date string) string {
	if len(date) < 4 {
		return ""
	}
	return date[:4]
}

// Image is one candidate poster or backdrop
type Image struct {
	FilePath    string
	VoteAverage float64
}

// BestImagePath picks the highest rated image, falling back to the given path
func BestImagePath(images []Image, fallback string) string {
	if len(images) == 0 {
		return fallback
	}
	sorted := make([]Image, len(images))
	copy(sorted, images)

	// Stable so equally rated images keep provider order
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VoteAverage > sorted[j].VoteAverage
	})

	if sorted[0].FilePath == "" {
		return fallback
	}
	return sorted[0].FilePath
}
