package report

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 200

var (
	reservedChars = regexp.MustCompile(`[<>"/\\|?*]`)
	separatorRuns = regexp.MustCompile(`[-\s]+`)

	asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > 127
	})))
)

// SanitizeFilename makes a sprint name safe to use as a file name on
// Windows, macOS and Linux. "BOPS: Sprint 11" becomes "BOPS-Sprint-11".
func SanitizeFilename(name string) string {
	if name == "" {
		return "untitled"
	}

	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	// Colons would create NTFS alternate data streams.
	folded = strings.ReplaceAll(folded, ":", "-")
	folded = reservedChars.ReplaceAllString(folded, "_")
	folded = strings.Map(func(r rune) rune {
		if r < 32 || r > 127 {
			return -1
		}
		return r
	}, folded)
	folded = strings.Trim(folded, ". ")
	folded = separatorRuns.ReplaceAllString(folded, "-")

	if len(folded) > maxFilenameLength {
		folded = strings.TrimRight(folded[:maxFilenameLength], "-_")
	}
	if folded == "" {
		return "report"
	}
	return folded
}

// ReportFilename builds "<sanitized name>_<sprint id>.<ext>".
func ReportFilename(sprintName string, sprintID int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", SanitizeFilename(sprintName), sprintID, strings.TrimPrefix(ext, "."))
}
