package storage

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CompositeFileName derives the deterministic filename for a generated
// personalization composite. All segments are slugified so the same inputs
// always produce the same object name.
func CompositeFileName(handle, templateRef, number string) (string, error) {
	handleSlug := Slugify(handle)
	templateSlug := Slugify(templateRef)
	numberSlug := Slugify(number)
	if handleSlug == "" || templateSlug == "" || numberSlug == "" {
		return "", fmt.Errorf("storage: composite filename requires handle, template and number (got %q, %q, %q)", handle, templateRef, number)
	}
	return fmt.Sprintf("%s__%s__num-%s.png", handleSlug, templateSlug, numberSlug), nil
}

// CompositeObjectPath places the composite next to the base artwork: the
// directory component of the base artwork URL's path plus the generated
// filename.
func CompositeObjectPath(baseArtworkURL, fileName string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseArtworkURL))
	if err != nil {
		return "", fmt.Errorf("storage: parse base artwork url: %w", err)
	}

	dir := parsed.Path
	if idx := strings.LastIndex(dir, "/"); idx >= 0 {
		dir = dir[:idx]
	}
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return fileName, nil
	}
	return dir + "/" + fileName, nil
}

// Slugify lowers the input, folds accented characters to their base form,
// and replaces every remaining path-unsafe run with a single hyphen.
func Slugify(value string) string {
	decomposed := norm.NFKD.String(strings.ToLower(strings.TrimSpace(value)))

	var b strings.Builder
	b.Grow(len(decomposed))
	lastHyphen := true
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining marks left over from decomposition are dropped.
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
