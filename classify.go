package mediareceiver

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the prefix layout of stored file names (yyyyMMdd_HHmmss).
const TimestampLayout = "20060102_150405"

var extensionCategories = map[string]Category{
	"jpg": CategoryImages, "jpeg": CategoryImages, "png": CategoryImages,
	"gif": CategoryImages, "bmp": CategoryImages, "webp": CategoryImages,

	"mp4": CategoryVideos, "avi": CategoryVideos, "mov": CategoryVideos,
	"wmv": CategoryVideos, "flv": CategoryVideos, "mkv": CategoryVideos,
	"3gp": CategoryVideos,

	"mp3": CategoryAudio, "wav": CategoryAudio, "ogg": CategoryAudio,
	"m4a": CategoryAudio, "aac": CategoryAudio,

	"pdf": CategoryDocuments, "doc": CategoryDocuments, "docx": CategoryDocuments,
	"txt": CategoryDocuments, "xls": CategoryDocuments, "xlsx": CategoryDocuments,
}

// Classify maps a filename to its storage category by lowercased extension.
// Empty names and names without an extension are CategoryOther.
func Classify(filename string) Category {
	ext := Extension(filename)
	if ext == "" {
		return CategoryOther
	}

	if c, ok := extensionCategories[strings.ToLower(ext)]; ok {
		return c
	}
	return CategoryOther
}

// Extension returns the text after the last dot of filename, without the dot.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return filename[i+1:]
}

// BaseName strips any client-side directory from a submitted filename.
// Some browsers send the full local path, with either separator.
func BaseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		return filename[i+1:]
	}
	return filename
}

// SafeName replaces every rune outside [A-Za-z0-9._-] with an underscore.
func SafeName(filename string) string {
	var b strings.Builder
	b.Grow(len(filename))

	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// SanitizeName produces the on-disk name for an upload received at t:
// a yyyyMMdd_HHmmss timestamp, an underscore, then the safe base name.
func SanitizeName(filename string, t time.Time) string {
	safe := SafeName(BaseName(filename))
	if safe == "" {
		safe = "file"
	}
	return t.Format(TimestampLayout) + "_" + safe
}

// FormatSize renders a byte count with base-1024 units and one decimal place.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	case bytes <= 0:
		return "0 B"
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
