package processor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/relabs-tech/ghcrawler/core/policy"
	"github.com/relabs-tech/ghcrawler/core/request"
)

// perPage is always overwritten on fanned-out page URLs
const perPage = "100"

// pageRequests derives the remaining page requests from the response's Link
// header. Only the pages after the current one are enqueued, each typed
// like the parent request. An unparseable header counts as no next page.
func (p *Processor) pageRequests(req *request.Request) []*request.Request {
	if req.Response == nil || req.Response.Link == "" {
		return nil
	}
	links := parseLinkHeader(req.Response.Link)

	next := pageNumberOf(links["next"])
	if next == 0 {
		return nil
	}
	last := pageNumberOf(links["last"])
	if last < next {
		last = next
	}

	pages := make([]*request.Request, 0, last-next+1)
	for page := next; page <= last; page++ {
		pageURL, err := urlWithPage(req.URL, page)
		if err != nil {
			// an unaddressable base URL ends the fan-out, the pages built
			// so far still go out
			break
		}
		child := req.Child(policy.EdgeCollectionPage, req.Type, pageURL)
		// relation pages stay correlated to the emission site
		child.Context = req.Context
		pages = append(pages, child)
	}
	return pages
}

// parseLinkHeader parses an RFC 5988 pagination header of the form
// `<url>; rel="next", <url>; rel="last"` into a rel to url map. Entries it
// cannot make sense of are dropped.
func parseLinkHeader(header string) map[string]string {
	links := map[string]string{}
	for _, entry := range strings.Split(header, ",") {
		parts := strings.Split(entry, ";")
		if len(parts) < 2 {
			continue
		}
		target := strings.TrimSpace(parts[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		target = target[1 : len(target)-1]

		for _, param := range parts[1:] {
			param = strings.TrimSpace(param)
			if !strings.HasPrefix(param, "rel=") {
				continue
			}
			rel := strings.Trim(strings.TrimPrefix(param, "rel="), `"`)
			if rel != "" {
				links[rel] = target
			}
		}
	}
	return links
}

// pageNumberOf extracts the page query parameter of a pagination URL
func pageNumberOf(raw string) int {
	if raw == "" {
		return 0
	}
	u, err := url.Parse(raw)
	if err != nil {
		return 0
	}
	page, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || page < 1 {
		return 0
	}
	return page
}

// pageNumber returns the page a request URL points at, defaulting to 1
func pageNumber(raw string) int {
	if page := pageNumberOf(raw); page > 0 {
		return page
	}
	return 1
}

// urlWithPage sets the page and per_page parameters on a URL
func urlWithPage(raw string, page int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	query := u.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", perPage)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
