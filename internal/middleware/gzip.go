package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/mmeshcher/clubhub/internal/respond"
)

type gzipReader struct {
	r  io.ReadCloser
	zr *gzip.Reader
}

func (r *gzipReader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

func (r *gzipReader) Close() error {
	if err := r.r.Close(); err != nil {
		return err
	}
	return r.zr.Close()
}

// GzipRequest распаковывает тела запросов с Content-Encoding: gzip.
// Сжатие ответов выполняет chi middleware.Compress.
func GzipRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				respond.Error(w, http.StatusBadRequest, "Invalid gzip body")
				return
			}
			r.Body = &gzipReader{r: r.Body, zr: zr}
			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.ContentLength = -1
		}

		next.ServeHTTP(w, r)
	})
}
