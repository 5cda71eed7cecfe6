package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync/atomic"
)

// maxErrorBody caps how much of a collector's error response is kept
const maxErrorBody = 4096

// Part is one file of a multipart upload. Size must be exact; it is used
// to compute the request's Content-Length.
type Part struct {
	Field       string
	FileName    string
	ContentType string
	Body        io.Reader
	Size        int64
}

// ProgressFunc receives the bytes written so far and the request total
type ProgressFunc func(transferred, total int64)

// Response is the collector's reply
type Response struct {
	StatusCode int
	Body       string
}

// MultipartRequest is a streamed multipart/form-data POST with a known length
type MultipartRequest struct {
	contentType string
	total       int64
	body        io.Reader
}

// NewMultipartRequest lays out the parts without reading them. The bodies
// are streamed when the request is sent.
func NewMultipartRequest(parts []Part) (*MultipartRequest, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	readers := make([]io.Reader, 0, 2*len(parts)+1)
	var total int64

	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(p.Field), escapeQuotes(p.FileName)))
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		if _, err := mw.CreatePart(h); err != nil {
			return nil, fmt.Errorf("failed to write part header for %s: %w", p.Field, err)
		}
		header := bytes.Clone(buf.Bytes())
		buf.Reset()
		readers = append(readers, bytes.NewReader(header), io.LimitReader(p.Body, p.Size))
		total += int64(len(header)) + p.Size
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	trailer := bytes.Clone(buf.Bytes())
	readers = append(readers, bytes.NewReader(trailer))
	total += int64(len(trailer))

	return &MultipartRequest{
		contentType: mw.FormDataContentType(),
		total:       total,
		body:        io.MultiReader(readers...),
	}, nil
}

// Total is the exact number of body bytes the request will send
func (r *MultipartRequest) Total() int64 { return r.total }

// Send posts the request. Transport failures return an error; any HTTP
// response, successful or not, is returned as a Response.
func (r *MultipartRequest) Send(ctx context.Context, client *http.Client, url string, headers map[string]string, progress ProgressFunc) (Response, error) {
	body := &countingReader{r: r.body, total: r.total, progress: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = r.total
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", r.contentType)

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return Response{StatusCode: resp.StatusCode}, fmt.Errorf("failed to read collector response: %w", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}, nil
}

// countingReader reports every read to the progress callback
type countingReader struct {
	r        io.Reader
	n        atomic.Int64
	total    int64
	progress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		done := c.n.Add(int64(n))
		if c.progress != nil {
			c.progress(done, c.total)
		}
	}
	return n, err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
