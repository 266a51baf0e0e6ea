package httpx

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLen = 120

// SanitizeFilename reduces a user-influenced filename to a form that is safe
// to embed in a Content-Disposition header: no directory components, ASCII
// letters, digits, '.', '-' and '_' only, no leading dots. Accented letters are
// transliterated ("Pañgasinan" becomes "Pangasinan"). When nothing usable
// remains the fallback is returned.
func SanitizeFilename(name, fallback string) string {
	if out := sanitize(name); out != "" {
		return out
	}
	if out := sanitize(fallback); out != "" {
		return out
	}
	return "download"
}

func sanitize(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, name); err == nil {
		name = folded
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.TrimLeft(b.String(), "._-")
	out = strings.TrimRight(out, "._-")
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	if len(out) > maxFilenameLen {
		ext := path.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = strings.TrimRight(out[:maxFilenameLen-len(ext)], "._-") + ext
	}
	return out
}
