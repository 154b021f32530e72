/*Package fetch loads the payload of a crawl request, either from the
GitHub origin or from storage, as directed by the request policy's fetch
strategy.
*/
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/ghcrawler/core/document"
	"github.com/relabs-tech/ghcrawler/core/logger"
	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
	"github.com/relabs-tech/ghcrawler/core/store"
)

const acceptHeader = "application/vnd.github.v3+json"

// immutable holds the types whose payloads never change at the origin. A
// stored copy of these satisfies the mutables fetch strategy.
var immutable = map[string]bool{
	"commit": true,
}

// Fetcher resolves requests against the GitHub REST API and the store
type Fetcher struct {
	client    *http.Client
	tokens    TokenSource
	store     store.Store
	userAgent string
}

// New creates a fetcher. A nil client falls back to a default client with a
// 30 second timeout.
func New(client *http.Client, tokens TokenSource, s store.Store) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{
		client:    client,
		tokens:    tokens,
		store:     s,
		userAgent: "ghcrawler",
	}
}

// Fetch populates the request's document and response according to the
// policy's fetch strategy. A request may come back without a document, e.g.
// when the origin reports the resource gone; the caller acknowledges those
// without processing.
func (f *Fetcher) Fetch(ctx context.Context, req *request.Request) error {
	switch req.Policy.Fetch {
	case policy.FetchNone:
		// events carry their payload along in the request
		return nil
	case policy.FetchStorage:
		return f.fromStorage(ctx, req)
	case policy.FetchMutables:
		if immutable[req.Type] || strings.HasSuffix(req.Type, "Event") {
			if err := f.fromStorage(ctx, req); err != nil {
				return err
			}
			if req.Document != nil {
				return nil
			}
		}
		return f.fromOrigin(ctx, req, true)
	case policy.FetchOriginStorage:
		return f.fromOrigin(ctx, req, true)
	case policy.FetchAlways:
		return f.fromOrigin(ctx, req, false)
	}
	return fmt.Errorf("fetch %s %s: unknown fetch strategy '%s'", req.Type, req.URL, req.Policy.Fetch)
}

func (f *Fetcher) fromStorage(ctx context.Context, req *request.Request) error {
	doc, err := f.store.Get(ctx, req.Type, req.URL)
	if err != nil {
		return fmt.Errorf("fetch %s %s from storage: %w", req.Type, req.URL, err)
	}
	req.Document = doc
	return nil
}

// fromOrigin issues a GET against the origin. With conditional set, the
// stored etag rides along as If-None-Match and a 304 resolves to the stored
// document.
func (f *Fetcher) fromOrigin(ctx context.Context, req *request.Request, conditional bool) error {
	rlog := logger.FromContext(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", req.Type, req.URL, err)
	}
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("User-Agent", f.userAgent)

	if f.tokens != nil {
		token, err := f.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("fetch %s %s: token: %w", req.Type, req.URL, err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "token "+token)
		}
	}

	storedEtag := ""
	if conditional {
		storedEtag, err = f.store.Etag(ctx, req.Type, req.URL)
		if err != nil {
			return fmt.Errorf("fetch %s %s: etag: %w", req.Type, req.URL, err)
		}
		if storedEtag != "" {
			httpReq.Header.Set("If-None-Match", storedEtag)
		}
	}

	res, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetch %s %s: %w", req.Type, req.URL, err)
	}
	defer res.Body.Close()

	req.Response = &request.Response{
		StatusCode: res.StatusCode,
		Etag:       res.Header.Get("ETag"),
		Link:       res.Header.Get("Link"),
		FetchedAt:  time.Now().UTC(),
	}

	switch {
	case res.StatusCode == http.StatusNotModified:
		req.Response.Etag = storedEtag
		return f.fromStorage(ctx, req)
	case res.StatusCode == http.StatusOK:
		body, err := io.ReadAll(res.Body)
		if err != nil {
			return fmt.Errorf("fetch %s %s: read body: %w", req.Type, req.URL, err)
		}
		doc, err := decode(req.Type, req.URL, body)
		if err != nil {
			return fmt.Errorf("fetch %s %s: %w", req.Type, req.URL, err)
		}
		doc.Meta.Etag = req.Response.Etag
		doc.Meta.FetchedAt = req.Response.FetchedAt.Format(time.RFC3339)
		req.Document = doc
		return nil
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusGone,
		res.StatusCode == http.StatusUnavailableForLegalReasons:
		rlog.Debugf("fetch %s %s: gone (%d)", req.Type, req.URL, res.StatusCode)
		req.Document = nil
		return nil
	case res.StatusCode == http.StatusForbidden && res.Header.Get("X-RateLimit-Remaining") == "0":
		return fmt.Errorf("fetch %s %s: rate limited until %s",
			req.Type, req.URL, res.Header.Get("X-RateLimit-Reset"))
	default:
		return fmt.Errorf("fetch %s %s: unexpected status %d", req.Type, req.URL, res.StatusCode)
	}
}

// decode parses a GitHub response body into a document. Collection pages
// arrive as arrays and get wrapped into an object holding "elements".
func decode(typ, url string, body []byte) (*document.Document, error) {
	trimmed := strings.TrimLeft(string(body), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var elements []interface{}
		if err := json.Unmarshal(body, &elements); err != nil {
			return nil, fmt.Errorf("decode page: %w", err)
		}
		return document.New(typ, url, map[string]interface{}{"elements": elements}), nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return document.New(typ, url, obj), nil
}
