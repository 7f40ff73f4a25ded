// Package organizer classifies uploaded filenames into a category tree and
// extracts capture dates from the naming conventions common on phone cameras
// and messaging apps.
package organizer

import (
	"strconv"
	"strings"
	"time"
)

const (
	CategoryAudio        = "Audio"
	CategoryVideos       = "Videos"
	CategoryPictures     = "Pictures"
	CategoryDocuments    = "Documents"
	CategoryArchives     = "Archives"
	CategoryApplications = "Applications"
	CategoryOther        = "Other"

	SubVoiceNotes    = "Voice Notes"
	SubCallRecords   = "Call Records"
	SubScreenRecords = "Screen Records"
	SubScreenshots   = "Screenshots"
)

var (
	audioExts   = []string{".opus", ".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac"}
	videoExts   = []string{".mp4", ".mov", ".avi", ".mkv", ".webm", ".flv", ".3gp"}
	imageExts   = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".heic"}
	docExts     = []string{".pdf", ".csv", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".rtf", ".odt", ".ods", ".odp", ".htm", ".html", ".xml", ".json"}
	archiveExts = []string{".zip", ".rar", ".7z", ".tar", ".gz", ".bz2"}
	appExts     = []string{".apk", ".exe", ".msi", ".dmg", ".app", ".sh", ".bat"}
)

func hasAnyExt(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(name string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func containsAny(name string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Classify maps a filename to a (category, subcategory) pair. Extension
// checks win over name-pattern checks within each category; subcategory is
// empty when none applies.
func Classify(name string) (category, subcategory string) {
	lower := strings.ToLower(name)

	if hasAnyExt(name, audioExts) {
		if strings.HasSuffix(lower, ".opus") {
			return CategoryAudio, SubVoiceNotes
		}
		return CategoryAudio, ""
	}
	if containsAny(lower, ")_", "call") {
		return CategoryAudio, SubCallRecords
	}

	if hasAnyExt(name, videoExts) {
		return CategoryVideos, ""
	}
	if strings.Contains(lower, "record") {
		return CategoryVideos, SubScreenRecords
	}

	if hasAnyExt(name, imageExts) {
		return CategoryPictures, ""
	}
	if strings.HasPrefix(name, "Screenshot") {
		return CategoryPictures, SubScreenshots
	}
	if hasAnyPrefix(name, "IMG_", "IMG-", "MVIMG_") && !hasAnyExt(name, []string{".mp4", ".mov"}) {
		return CategoryPictures, ""
	}

	if strings.HasPrefix(name, "DOC") || hasAnyExt(name, docExts) {
		return CategoryDocuments, ""
	}

	if hasAnyExt(name, archiveExts) {
		return CategoryArchives, ""
	}

	if hasAnyExt(name, appExts) {
		return CategoryApplications, ""
	}

	return CategoryOther, ""
}

// Prefix groups that carry a %Y%m%d token somewhere in the name. The order
// matters: earlier groups shadow later ones.
var (
	underscoreDatePrefixes = []string{"IMG_", "VID_", "MVIMG_", "SAVE_"}
	dashDatePrefixes       = []string{"IMG-", "AUD-", "PTT-", "VID-", "null-", "DOC"}
	isoDatePrefixes        = []string{"2017-", "2018-", "2019-", "2020-", "2021-", "2022-", "2023-", "2024-", "2025-", "2026-"}
	bareYearPrefixes       = []string{"2017", "2018", "2019", "2020", "2021", "2022", "2023", "2024", "2025", "2026"}
	spacedDatePrefixes     = []string{"WhatsApp ", "Screen Recording"}
	callRecordMarkers      = []string{")_", "call_"}
)

// extractDateToken pulls the raw %Y%m%d string out of a filename, reporting
// whether any known naming convention matched.
func extractDateToken(name string) (string, bool) {
	if epoch, ok := parseEpochStem(name); ok {
		// Plain unix-epoch stems still lose to explicit prefixes below.
		if !hasKnownPrefix(name) {
			return epoch, true
		}
	}

	switch {
	case hasAnyPrefix(name, underscoreDatePrefixes...):
		return fieldAfter(name, "_", 1)
	case hasAnyPrefix(name, dashDatePrefixes...):
		return fieldAfter(name, "-", 1)
	case hasAnyPrefix(name, isoDatePrefixes...):
		stem, _, _ := strings.Cut(name, ".")
		parts := strings.Split(stem, "-")
		if len(parts) < 3 {
			return "", false
		}
		return parts[0] + parts[1] + parts[2], true
	case hasAnyPrefix(name, bareYearPrefixes...):
		return fieldAfter(name, "_", 0)
	case strings.HasPrefix(name, "Screenshot_"):
		token, ok := fieldAfter(name, "_", 1)
		if !ok {
			return "", false
		}
		if strings.Contains(name, "com.") {
			parts := strings.Split(token, "-")
			if len(parts) < 3 {
				return "", false
			}
			return parts[0] + parts[1] + parts[2], true
		}
		token, _, _ = strings.Cut(token, "-")
		return token, true
	case strings.HasPrefix(name, "Screenrecorder-"):
		parts := strings.Split(name, "-")
		if len(parts) < 4 {
			return "", false
		}
		return parts[1] + parts[2] + parts[3], true
	case strings.HasPrefix(name, "IMG20"):
		stem, _, _ := strings.Cut(name, ".")
		if len(stem) < 11 {
			return "", false
		}
		return stem[3:11], true
	case containsAny(name, callRecordMarkers...):
		token, ok := fieldAfter(name, "_", 1)
		if !ok {
			return "", false
		}
		token, _, _ = strings.Cut(token, ".")
		if len(token) > 8 {
			token = token[:8]
		}
		return token, true
	case hasAnyPrefix(name, spacedDatePrefixes...):
		token, ok := fieldAfter(name, " ", 2)
		if !ok {
			return "", false
		}
		return strings.ReplaceAll(token, "-", ""), true
	case strings.HasPrefix(name, "Screenshot "):
		token, ok := fieldAfter(name, " ", 1)
		if !ok {
			return "", false
		}
		return strings.ReplaceAll(token, "-", ""), true
	case strings.HasPrefix(name, "VID"):
		if len(name) < 11 {
			return "", false
		}
		return name[3:11], true
	}
	return "", false
}

func hasKnownPrefix(name string) bool {
	return hasAnyPrefix(name, underscoreDatePrefixes...) ||
		hasAnyPrefix(name, dashDatePrefixes...) ||
		hasAnyPrefix(name, isoDatePrefixes...) ||
		hasAnyPrefix(name, bareYearPrefixes...) ||
		hasAnyPrefix(name, spacedDatePrefixes...) ||
		hasAnyPrefix(name, "Screenshot", "Screenrecorder-", "IMG20", "VID") ||
		containsAny(name, callRecordMarkers...)
}

// parseEpochStem handles names that are a bare unix timestamp plus extension.
func parseEpochStem(name string) (string, bool) {
	stem, _, _ := strings.Cut(name, ".")
	secs, err := strconv.ParseFloat(stem, 64)
	if err != nil {
		return "", false
	}
	return time.Unix(int64(secs), 0).UTC().Format("20060102"), true
}

func fieldAfter(name, sep string, index int) (string, bool) {
	parts := strings.Split(name, sep)
	if index >= len(parts) {
		return "", false
	}
	return parts[index], true
}

// ExtractDate returns the capture date encoded in a filename, falling back to
// now when the name carries no recognizable date.
func ExtractDate(name string, now time.Time) time.Time {
	token, ok := extractDateToken(name)
	if !ok {
		return now
	}
	if len(token) > 8 {
		token = token[:8]
	}
	date, err := time.Parse("20060102", token)
	if err != nil {
		return now
	}
	return date
}

// DirectoryPath returns the auto-organize folder hierarchy for a filename,
// category first. Hidden files and plain .txt chat exports return nil and
// are left where they were uploaded.
func DirectoryPath(name string) []string {
	if strings.HasPrefix(name, ".") {
		return nil
	}
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return nil
	}

	category, sub := Classify(name)
	path := []string{category}
	if sub != "" {
		path = append(path, sub)
	}

	// Screenshot names always file under Screenshots, even when the
	// extension classified them as plain Pictures.
	if strings.HasPrefix(name, "Screenshot") {
		if len(path) == 1 {
			path = append(path, SubScreenshots)
		} else if path[1] != SubScreenshots {
			path[1] = SubScreenshots
		}
	}

	return path
}
