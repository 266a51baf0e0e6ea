package httpx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		fallback string
		want     string
	}{
		{name: "plain", in: "report.xlsx", want: "report.xlsx"},
		{name: "spaces", in: "Accomplishment Report  Q1.xlsx", want: "Accomplishment_Report_Q1.xlsx"},
		{name: "traversal", in: "../../secret.txt", want: "secret.txt"},
		{name: "windows path", in: `C:\Users\staff\billing.csv`, want: "billing.csv"},
		{name: "accents", in: "Pañgasinan Señor.csv", want: "Pangasinan_Senor.csv"},
		{name: "hidden", in: ".htaccess", want: "htaccess"},
		{name: "quotes and crlf", in: "a\"b\r\nc.pdf", want: "ab_c.pdf"},
		{name: "empty falls back", in: "", fallback: "merged.pdf", want: "merged.pdf"},
		{name: "only symbols", in: "../..", fallback: "", want: "download"},
		{name: "double dots", in: "a..b.csv", want: "a.b.csv"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeFilename(tc.in, tc.fallback))
		})
	}
}

func TestSanitizeFilenameTruncatesKeepingExtension(t *testing.T) {
	in := strings.Repeat("a", 300) + ".pdf"
	out := SanitizeFilename(in, "")
	assert.LessOrEqual(t, len(out), maxFilenameLen)
	assert.True(t, strings.HasSuffix(out, ".pdf"))
}
