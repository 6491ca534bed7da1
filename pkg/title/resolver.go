// Package title derives a human-readable title for a submitted link.
package title

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"stories-api/pkg/httpclient"

	"github.com/PuerkitoBio/goquery"
)

// RemoteFetchError reports that the page behind a URL could not be fetched or parsed.
type RemoteFetchError struct {
	URL string
	Err error
}

func (e *RemoteFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}

// Resolver fetches pages and extracts their <title>.
type Resolver struct {
	client *httpclient.HTTPClient
	logger *slog.Logger
}

// NewResolver creates a resolver using the given HTTP client.
func NewResolver(client *httpclient.HTTPClient, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger,
	}
}

// Resolve returns the page title of url. If the page cannot be fetched the
// url itself is returned; a page without a title yields "".
//
// There is no timeout beyond what ctx imposes, and no retry.
func (r *Resolver) Resolve(ctx context.Context, url string) string {
	title, err := r.fetchTitle(ctx, url)
	if err != nil {
		r.logger.Warn("title fetch failed, using url as title", "url", url, "error", err)
		return url
	}
	return title
}

func (r *Resolver) fetchTitle(ctx context.Context, url string) (string, error) {
	resp, err := r.client.Get(ctx, url)
	if err != nil {
		return "", &RemoteFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	title, err := ExtractTitle(resp.Body)
	if err != nil {
		return "", &RemoteFetchError{URL: url, Err: err}
	}
	return title, nil
}

// ExtractTitle parses an HTML document and returns the trimmed text of its
// head > title element, or "" when there is none.
func ExtractTitle(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return strings.TrimSpace(doc.Find("head > title").First().Text()), nil
}
