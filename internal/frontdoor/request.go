package frontdoor

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/tjfontaine/actiongate/internal/core/ports"
)

// httpRequest adapts *http.Request to ports.Request. The body is read once
// up front so that both form parsing and the Body/Payload accessors see it.
type httpRequest struct {
	r     *http.Request
	url   *url.URL
	body  []byte
	query map[string]any
	form  map[string]any
	files map[string]any
}

var _ ports.Request = (*httpRequest)(nil)

func newRequest(w http.ResponseWriter, r *http.Request, maxBody, maxMemory int64) (*httpRequest, error) {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if isSecure(r) {
		u.Scheme = "https"
	}

	req := &httpRequest{
		r:     r,
		url:   &u,
		query: valuesMap(r.URL.Query()),
		form:  map[string]any{},
		files: map[string]any{},
	}
	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	req.body = body
	r.Body = io.NopCloser(bytes.NewReader(body))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		req.form = valuesMap(r.PostForm)
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		req.form = valuesMap(r.MultipartForm.Value)
		req.files = filesMap(r.MultipartForm.File)
	}
	return req, nil
}

// cleanup removes multipart temp files.
func (q *httpRequest) cleanup() {
	if q.r.MultipartForm != nil {
		q.r.MultipartForm.RemoveAll()
	}
}

func (q *httpRequest) Method() string { return q.r.Method }
func (q *httpRequest) URL() *url.URL { return q.url }
func (q *httpRequest) Header(name string) string { return q.r.Header.Get(name) }
func (q *httpRequest) Query() map[string]any { return q.query }
func (q *httpRequest) Form() map[string]any { return q.form }
func (q *httpRequest) Body() ([]byte, error) { return q.body, nil }
func (q *httpRequest) Files() map[string]any { return q.files }
func (q *httpRequest) Secure() bool { return q.url.Scheme == "https" }

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// valuesMap flattens url.Values: one value becomes a string, repeated
// values a []any.
func valuesMap(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		list := make([]any, len(vs))
		for i, v := range vs {
			list[i] = v
		}
		out[k] = list
	}
	return out
}

func filesMap(files map[string][]*multipart.FileHeader) map[string]any {
	out := make(map[string]any, len(files))
	for field, headers := range files {
		uploads := make([]ports.UploadedFile, len(headers))
		for i, fh := range headers {
			uploads[i] = ports.UploadedFile{
				Field: field,
				Name:  fh.Filename,
				MIME:  fh.Header.Get("Content-Type"),
				Size:  fh.Size,
			}
		}
		if len(uploads) == 1 {
			out[field] = uploads[0]
		} else {
			out[field] = uploads
		}
	}
	return out
}
