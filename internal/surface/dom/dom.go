// Package dom implements surface.Surface over a parsed HTML document held in
// memory. There is no script engine: clicks, value changes and focus are
// recorded as events, and a click on a control carrying aria-controls toggles
// the hidden class on the controlled element.
package dom

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"voiceui/internal/surface"
)

// DefaultViewport is used when no viewport option is given.
var DefaultViewport = surface.Rect{Width: 1280, Height: 720}

// defaultBox is the layout of a visible element without a data-rect attribute.
var defaultBox = surface.Rect{X: 0, Y: 0, Width: 100, Height: 20}

// Event is one dispatched UI event.
type Event struct {
	Type  string `json:"type"`
	Tag   string `json:"tag"`
	ID    string `json:"id,omitempty"`
	Voice string `json:"voice,omitempty"`
	Value string `json:"value,omitempty"`
}

// Document is a mutable in-memory surface. It is safe for concurrent use.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	viewport surface.Rect
	focused  *html.Node
	events   []Event
}

type Option func(*Document)

// WithViewport overrides DefaultViewport.
func WithViewport(width, height float64) Option {
	return func(d *Document) { d.viewport = surface.Rect{Width: width, Height: height} }
}

func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	d := &Document{root: root, viewport: DefaultViewport}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Events returns a copy of the event log.
func (d *Document) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Render serializes the current document.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Focused returns the element that last received focus, or nil.
func (d *Document) Focused() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.focused == nil || !d.attached(d.focused) {
		return nil
	}
	return &Element{doc: d, n: d.focused}
}

func (d *Document) Viewport(context.Context) (surface.Rect, error) {
	return d.viewport, nil
}

func (d *Document) QueryAll(_ context.Context, selector string) ([]surface.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(cascadia.QueryAll(d.root, sel)), nil
}

func (d *Document) Query(_ context.Context, selector string) (surface.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n := cascadia.Query(d.root, sel)
	if n == nil {
		return nil, nil
	}
	return &Element{doc: d, n: n}, nil
}

func compile(selector string) (cascadia.Matcher, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("empty selector")
	}
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", selector, err)
	}
	return sel, nil
}

func (d *Document) wrap(nodes []*html.Node) []surface.Element {
	out := make([]surface.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{doc: d, n: n})
	}
	return out
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func (d *Document) record(typ string, n *html.Node) {
	d.events = append(d.events, Event{
		Type:  typ,
		Tag:   n.Data,
		ID:    attr(n, "id"),
		Voice: attr(n, surface.AttrVoice),
		Value: value(n),
	})
}

func (d *Document) byID(id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func setTextContent(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func classes(n *html.Node) []string { return strings.Fields(attr(n, "class")) }

func hasClass(n *html.Node, class string) bool {
	for _, c := range classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// styles parses an inline style attribute preserving declaration order.
func styles(n *html.Node) [][2]string {
	var out [][2]string
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}

func style(n *html.Node, prop string) string {
	for _, kv := range styles(n) {
		if kv[0] == prop {
			return kv[1]
		}
	}
	return ""
}

func hidden(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if hasClass(p, "hidden") || hasAttr(p, "hidden") || strings.EqualFold(style(p, "display"), "none") {
			return true
		}
	}
	return false
}

// layout reads data-rect="x,y,w,h" when present; hidden elements have a zero box.
func layout(n *html.Node) surface.Rect {
	if hidden(n) {
		return surface.Rect{}
	}
	raw := attr(n, "data-rect")
	if raw == "" {
		return defaultBox
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return defaultBox
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultBox
		}
		v[i] = f
	}
	return surface.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
}

var optionSel = cascadia.MustCompile("option")

func options(n *html.Node) []*html.Node {
	return cascadia.QueryAll(n, optionSel)
}

func optionValue(o *html.Node) string {
	if hasAttr(o, "value") {
		return attr(o, "value")
	}
	return strings.TrimSpace(textContent(o))
}

func value(n *html.Node) string {
	switch n.Data {
	case "input":
		return attr(n, "value")
	case "option":
		return optionValue(n)
	case "textarea":
		return textContent(n)
	case "select":
		opts := options(n)
		for _, o := range opts {
			if hasAttr(o, "selected") {
				return optionValue(o)
			}
		}
		if len(opts) > 0 {
			return optionValue(opts[0])
		}
	}
	return ""
}
