package grab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/ankit-chaubey/flacgrab/core"
)

// HTTPStatusError reports a non-2xx response to a track request.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher downloads album art and opens track streams.
type Fetcher struct {
	// Album art is small and fetched whole, with httpkit's retries.
	art *httpkit.Client
	// Tracks are streamed; only the response headers are bounded in time.
	stream *http.Client
}

// NewFetcher returns a Fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &Fetcher{
		art:    httpkit.New(timeout),
		stream: &http.Client{Transport: transport},
	}
}

// Artwork is downloaded album art.
type Artwork struct {
	Data []byte
	// Ext is the file extension, with the leading dot.
	Ext string
}

// FetchArt downloads the image at url. Its extension is taken from the URL
// when that names an image format, and sniffed from the content otherwise.
func (f *Fetcher) FetchArt(ctx context.Context, url string) (*Artwork, error) {
	data, err := f.art.FetchBytes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch album art: %w", err)
	}
	ext := extensionFromURL(url)
	if ext == "" {
		mt := mimetype.Detect(data)
		var ok bool
		if ext, ok = core.ExtensionForMIME(mt.String()); !ok {
			ext = mt.Extension()
		}
	}
	return &Artwork{Data: data, Ext: ext}, nil
}

// OpenTrack starts downloading the track at url. The caller closes the
// returned body.
func (f *Fetcher) OpenTrack(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPStatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}
