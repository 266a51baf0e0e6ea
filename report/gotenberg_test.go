package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePDFsSendsOrderedParts(t *testing.T) {
	var names []string
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/pdfengines/merge", r.URL.Path)
		reader, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			b, _ := io.ReadAll(part)
			names = append(names, part.FileName())
			bodies = append(bodies, string(b))
		}
		_, _ = w.Write([]byte("%PDF-merged"))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL).MergePDFs(context.Background(), []File{
		{Name: "zeta.pdf", Content: []byte("first")},
		{Name: "alpha.pdf", Content: []byte("second")},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-merged", string(out))
	assert.Equal(t, []string{"001.pdf", "002.pdf"}, names)
	assert.Equal(t, []string{"first", "second"}, bodies)
}

func TestMergePDFsNeedsTwoFiles(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0").MergePDFs(context.Background(), []File{{Name: "a.pdf"}})
	assert.Error(t, err)
}

func TestUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := NewClient(srv.URL)

	_, err := c.RenderHTML(context.Background(), "<p>x</p>")
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(c.Ping(context.Background()), ErrUpstream))
}
