package web

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// Page is a fetched and parsed web page.
type Page struct {
	// URL is the url that was requested. Links are resolved against it.
	URL *url.URL
	// Links are the absolute urls found on the page in document order.
	// Duplicates are kept.
	Links []*url.URL
	Doc   *goquery.Document

	Status       int
	ContentType  string
	ResponseTime time.Duration
	Redirected   bool
}

// linkSelector matches every anchor-like element that carries a link
// target.
const linkSelector = "a[href], area[href]"

// ParsePage parses an html document and collects its links, resolving them
// against u.
func ParsePage(u *url.URL, body io.Reader) (*Page, error) {
	root, err := html.ParseWithOptions(body)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse html")
	}
	doc := goquery.NewDocumentFromNode(root)
	doc.Url = u
	return &Page{
		URL:   u,
		Doc:   doc,
		Links: getLinks(doc, u),
	}, nil
}

// Text returns the text content of the page's html element.
func (p *Page) Text() string {
	if p.Doc == nil {
		return ""
	}
	return p.Doc.Find("html").Text()
}

// HTML renders the page's html element back to a string.
func (p *Page) HTML() (string, error) {
	if p.Doc == nil {
		return "", errors.New("page has no document")
	}
	return goquery.OuterHtml(p.Doc.Find("html"))
}

func getLinks(doc *goquery.Document, entry *url.URL) []*url.URL {
	var (
		sel   = doc.Find(linkSelector)
		links = make([]*url.URL, 0, sel.Length())
	)
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.Trim(href, "\t \n\r")
		if _, err := url.Parse(href); err != nil {
			// Skip invalid hyperlinks
			return
		}
		u := Resolve(entry, href)
		if u == nil || !crawlable(u) {
			return
		}
		links = append(links, u)
	})
	return links
}

// crawlable filters out links like "mailto:" and "javascript:" that have a
// scheme but nothing to fetch over http.
func crawlable(u *url.URL) bool {
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	default:
		return false
	}
}

func wasRedirected(resp *http.Response) bool {
	for resp != nil {
		switch resp.StatusCode {
		case 301, 302, 303, 307, 308:
			return true
		}
		if resp.Request == nil {
			break
		}
		resp = resp.Request.Response
	}
	return false
}

func getContentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	parts := strings.Split(ct, ";")
	return strings.TrimSpace(parts[0])
}
