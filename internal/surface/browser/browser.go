// Package browser implements surface.Surface over a live Chrome page driven
// through the DevTools protocol.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"voiceui/internal/surface"
)

// Browser owns one CDP connection.
type Browser struct {
	browser *rod.Browser
	launch  *launcher.Launcher
}

// Connect attaches to controlURL, or launches a local Chrome when it is empty.
func Connect(ctx context.Context, controlURL string, headless bool) (*Browser, error) {
	b := &Browser{}
	if controlURL == "" {
		b.launch = launcher.New().Headless(headless)
		u, err := b.launch.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}
	rb := rod.New().ControlURL(controlURL).Context(ctx)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	b.browser = rb
	return b, nil
}

// Open navigates a new tab to url and waits for the load event.
func (b *Browser) Open(ctx context.Context, url string) (*Page, error) {
	p, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("load %s: %w", url, err)
	}
	return &Page{page: p}, nil
}

func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launch != nil {
		b.launch.Kill()
	}
	return err
}

// Page adapts a rod page to surface.Surface.
type Page struct {
	page *rod.Page
}

var _ surface.Surface = (*Page)(nil)

func (p *Page) Close() error { return p.page.Close() }

func (p *Page) Viewport(ctx context.Context) (surface.Rect, error) {
	res, err := p.page.Context(ctx).Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return surface.Rect{}, fmt.Errorf("viewport: %w", err)
	}
	return surface.Rect{Width: res.Value.Get("w").Num(), Height: res.Value.Get("h").Num()}, nil
}

func (p *Page) QueryAll(ctx context.Context, selector string) ([]surface.Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrap(els), nil
}

func (p *Page) Query(ctx context.Context, selector string) (surface.Element, error) {
	els, err := p.QueryAll(ctx, selector)
	if err != nil || len(els) == 0 {
		return nil, err
	}
	return els[0], nil
}

func wrap(els rod.Elements) []surface.Element {
	out := make([]surface.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

// Element adapts a rod element to surface.Element.
type Element struct {
	el *rod.Element
}

var _ surface.Element = (*Element)(nil)

const describeJS = `function() {
	const attrs = {};
	for (const a of this.attributes) attrs[a.name] = a.value;
	const r = this.getBoundingClientRect();
	const sibs = this.parentElement
		? Array.from(this.parentElement.children).filter(s => s.tagName === this.tagName)
		: [this];
	return {
		tag: this.tagName.toLowerCase(),
		attrs,
		text: this.textContent || "",
		value: typeof this.value === "string" ? this.value : "",
		editable: !!this.isContentEditable,
		box: {x: r.left, y: r.top, w: r.width, h: r.height},
		count: sibs.length,
		index: sibs.indexOf(this) + 1,
	};
}`

type description struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs"`
	Text     string            `json:"text"`
	Value    string            `json:"value"`
	Editable bool              `json:"editable"`
	Box      struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"box"`
	Count int `json:"count"`
	Index int `json:"index"`
}

func (e *Element) Describe(ctx context.Context) (surface.Description, error) {
	res, err := e.el.Context(ctx).Eval(describeJS)
	if err != nil {
		return surface.Description{}, detached(err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return surface.Description{}, err
	}
	var d description
	if err := json.Unmarshal(raw, &d); err != nil {
		return surface.Description{}, fmt.Errorf("decode element: %w", err)
	}
	return surface.Description{
		Tag:             d.Tag,
		Attrs:           d.Attrs,
		Text:            d.Text,
		Value:           d.Value,
		ContentEditable: d.Editable,
		Box:             surface.Rect{X: d.Box.X, Y: d.Box.Y, Width: d.Box.W, Height: d.Box.H},
		SameTagSiblings: d.Count,
		TypeIndex:       d.Index,
	}, nil
}

func (e *Element) Parent(ctx context.Context) (surface.Element, error) {
	res, err := e.el.Context(ctx).Eval(`function() { return this.tagName === "BODY" || !this.parentElement || this.parentElement.tagName === "HTML" }`)
	if err != nil {
		return nil, detached(err)
	}
	if res.Value.Bool() {
		return nil, nil
	}
	p, err := e.el.Context(ctx).Parent()
	if err != nil {
		return nil, detached(err)
	}
	return &Element{el: p}, nil
}

func (e *Element) QueryAll(ctx context.Context, selector string) ([]surface.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrap(els), nil
}

func (e *Element) Click(ctx context.Context) error {
	// Synthetic click works for covered or zero-size elements where a mouse
	// click would miss.
	_, err := e.el.Context(ctx).Eval(`function() { this.click() }`)
	return detached(err)
}

func (e *Element) Focus(ctx context.Context) error {
	return detached(e.el.Context(ctx).Focus())
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`function() { this.scrollIntoView({behavior: "smooth", block: "center"}) }`)
	return detached(err)
}

func (e *Element) SetValue(ctx context.Context, v string) error {
	_, err := e.el.Context(ctx).Eval(`function(v) {
		this.value = v;
		this.dispatchEvent(new Event("input", {bubbles: true}));
		this.dispatchEvent(new Event("change", {bubbles: true}));
	}`, v)
	return detached(err)
}

func (e *Element) SetText(ctx context.Context, text string) error {
	_, err := e.el.Context(ctx).Eval(`function(v) {
		this.textContent = v;
		this.dispatchEvent(new Event("input", {bubbles: true}));
	}`, text)
	return detached(err)
}

func (e *Element) SelectOption(ctx context.Context, v string) error {
	res, err := e.el.Context(ctx).Eval(`function(v) {
		if (this.tagName !== "SELECT") return false;
		if (!Array.from(this.options).some(o => o.value === v)) return false;
		this.value = v;
		this.dispatchEvent(new Event("change", {bubbles: true}));
		return true;
	}`, v)
	if err != nil {
		return detached(err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("no option with value %q", v)
	}
	return nil
}

func (e *Element) AddClass(ctx context.Context, class string) error {
	_, err := e.el.Context(ctx).Eval(`function(c) { this.classList.add(c) }`, class)
	return detached(err)
}

func (e *Element) RemoveClass(ctx context.Context, class string) error {
	_, err := e.el.Context(ctx).Eval(`function(c) { this.classList.remove(c) }`, class)
	return detached(err)
}

func (e *Element) SetStyle(ctx context.Context, property, v string) error {
	_, err := e.el.Context(ctx).Eval(`function(p, v) { this.style.setProperty(p, v) }`, property, v)
	return detached(err)
}

// detached maps CDP "node not found" style failures to surface.ErrDetached.
func detached(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Could not find node") || strings.Contains(msg, "Cannot find context") {
		return fmt.Errorf("%w: %v", surface.ErrDetached, err)
	}
	return err
}
