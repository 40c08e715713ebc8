package fileutil

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// Illegal chars: / \ : * ? " < > |
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	separators   = regexp.MustCompile(`[\s_-]+`)
)

// SanitizeForFilename sanitizes a string for safe use in filenames
func SanitizeForFilename(input string) string {
	sanitized := illegalChars.ReplaceAllString(input, "_")

	// Runs of spaces, underscores and hyphens become one hyphen
	sanitized = separators.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-")

	// Limit length to 50 characters for reasonable filenames
	if len(sanitized) > 50 {
		sanitized = strings.TrimRight(sanitized[:50], "-")
	}

	if sanitized == "" {
		return "Meeting"
	}
	return sanitized
}

// BaseName returns YYYY-MM-DD_HHMM_<sanitized title>, the stem shared by a
// session's recording and its record.
func BaseName(at time.Time, title string) string {
	return at.Format("2006-01-02_1504") + "_" + SanitizeForFilename(title)
}

// RenameRecording moves a finished recording to <dir>/<newBasename><ext>.
// A missing source is not an error; the original path is returned.
func RenameRecording(obsPath, newBasename string) (string, error) {
	if obsPath == "" {
		return "", nil
	}
	if _, err := os.Stat(obsPath); os.IsNotExist(err) {
		return obsPath, nil
	}

	dir := filepath.Dir(obsPath)
	ext := filepath.Ext(obsPath)
	newPath := filepath.Join(dir, newBasename+ext)
	if obsPath == newPath {
		return obsPath, nil
	}

	// Name taken: append _2, _3, ...
	if _, err := os.Stat(newPath); err == nil {
		for i := 2; i < 100; i++ {
			tryPath := filepath.Join(dir, newBasename+"_"+strconv.Itoa(i)+ext)
			if _, err := os.Stat(tryPath); os.IsNotExist(err) {
				newPath = tryPath
				break
			}
		}
	}

	if err := os.Rename(obsPath, newPath); err != nil {
		return obsPath, err
	}
	return newPath, nil
}
