package datasets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
)

// transferClient performs artifact downloads over HTTP.
type transferClient struct {
	// httpClient is used for HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

// newTransferClient creates a new transfer client.
func newTransferClient(client HTTPClient, logger Logger) *transferClient {
	return &transferClient{
		httpClient: client,
		logger:     logger,
	}
}

// fetch downloads url and returns its full body.
//
// If expectedSize is non-zero and the response advertises a Content-Length,
// the two must agree before any byte is read. The body is streamed into a
// buffer pre-grown only to an advertised length that matched, and reading
// stops just past expectedSize. onProgress, when non-nil, receives the size
// of every read as it happens. There is no retry: the first failure is
// returned to the caller.
func (c *transferClient) fetch(ctx context.Context, url string, expectedSize uint64, onProgress func(delta int64)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedURL, url, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetching %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("fetching %s: %w: %v", url, ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d: %w", url, resp.StatusCode, ErrHTTPStatus)
	}

	if expectedSize > 0 && resp.ContentLength >= 0 && uint64(resp.ContentLength) != expectedSize {
		return nil, fmt.Errorf("fetching %s: advertised %d bytes, expected %d: %w",
			url, resp.ContentLength, expectedSize, ErrSizeMismatch)
	}

	if c.logger != nil {
		c.logger.Debug("transfer started", "url", url, "content_length", resp.ContentLength)
	}

	// Wrap body with progress reader if callback provided
	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{reader: resp.Body, onProgress: onProgress}
	}

	// Stop one byte past expectedSize; the length check below reports it.
	if expectedSize > 0 && expectedSize < math.MaxInt64 {
		reader = io.LimitReader(reader, int64(expectedSize)+1)
	}

	var buf bytes.Buffer
	if expectedSize > 0 && resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := buf.ReadFrom(reader); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("reading %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("reading %s: %w: %v", url, ErrNetwork, err)
	}

	// Servers that omit Content-Length are checked after the fact.
	if expectedSize > 0 && uint64(buf.Len()) != expectedSize {
		return nil, fmt.Errorf("fetching %s: received %d bytes, expected %d: %w",
			url, buf.Len(), expectedSize, ErrSizeMismatch)
	}

	return buf.Bytes(), nil
}

// progressReader wraps an io.Reader and reports progress as bytes are read.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
