package testsupport

import (
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLDocument is a Document over a parsed HTML tree. Dispatched events are
// recorded so a server-rendered page can replay them.
type HTMLDocument struct {
	mu     sync.Mutex
	root   *html.Node
	events []string
}

// ParseHTML parses r into an HTMLDocument
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &HTMLDocument{root: root}, nil
}

// AddBodyClass adds class to the body element once
func (d *HTMLDocument) AddBodyClass(class string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := d.body()
	if body == nil {
		return
	}
	for i, attr := range body.Attr {
		if attr.Key != "class" {
			continue
		}
		classes := strings.Fields(attr.Val)
		if !slices.Contains(classes, class) {
			body.Attr[i].Val = strings.Join(append(classes, class), " ")
		}
		return
	}
	body.Attr = append(body.Attr, html.Attribute{Key: "class", Val: class})
}

// HasBodyClass reports whether the body element carries class
func (d *HTMLDocument) HasBodyClass(class string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := d.body()
	if body == nil {
		return false
	}
	for _, attr := range body.Attr {
		if attr.Key == "class" && slices.Contains(strings.Fields(attr.Val), class) {
			return true
		}
	}
	return false
}

// DispatchEvent records an event fired on the document
func (d *HTMLDocument) DispatchEvent(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, name)
}

// Events returns the dispatched events in order
func (d *HTMLDocument) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.events)
}

// HasElement reports whether an element with the given id exists
func (d *HTMLDocument) HasElement(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return findNode(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}) != nil
}

// AppendElement appends an empty div with the given id to the body
func (d *HTMLDocument) AppendElement(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	body := d.body()
	if body == nil {
		return
	}
	body.AppendChild(&html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "id", Val: id}},
	})
}

// Render writes the document as HTML
func (d *HTMLDocument) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *HTMLDocument) body() *html.Node {
	return findNode(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// StaticPage pairs a location with a document
type StaticPage struct {
	URL *url.URL
	Doc Document
}

// NewStaticPage parses rawURL and wraps doc
func NewStaticPage(rawURL string, doc Document) (*StaticPage, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	return &StaticPage{URL: u, Doc: doc}, nil
}

func (p *StaticPage) Location() *url.URL { return p.URL }

func (p *StaticPage) Document() Document { return p.Doc }
