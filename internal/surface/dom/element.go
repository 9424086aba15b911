package dom

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"voiceui/internal/surface"
)

// Element is a handle to a node of a Document.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ surface.Element = (*Element)(nil)

// Node exposes the underlying html node.
func (e *Element) Node() *html.Node { return e.n }

func (e *Element) check() error {
	if !e.doc.attached(e.n) {
		return surface.ErrDetached
	}
	return nil
}

func (e *Element) Describe(context.Context) (surface.Description, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return surface.Description{}, err
	}
	attrs := make(map[string]string, len(e.n.Attr))
	for _, a := range e.n.Attr {
		attrs[a.Key] = a.Val
	}
	ce := strings.ToLower(attr(e.n, "contenteditable"))
	d := surface.Description{
		Tag:             e.n.Data,
		Attrs:           attrs,
		Text:            textContent(e.n),
		Value:           value(e.n),
		ContentEditable: hasAttr(e.n, "contenteditable") && ce != "false",
		Box:             layout(e.n),
	}
	d.SameTagSiblings, d.TypeIndex = 1, 1
	if p := e.n.Parent; p != nil {
		d.SameTagSiblings = 0
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data != e.n.Data {
				continue
			}
			d.SameTagSiblings++
			if c == e.n {
				d.TypeIndex = d.SameTagSiblings
			}
		}
	}
	return d, nil
}

func (e *Element) Parent(context.Context) (surface.Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	if e.n.Data == "body" {
		return nil, nil
	}
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode || p.Data == "html" {
		return nil, nil
	}
	return &Element{doc: e.doc, n: p}, nil
}

func (e *Element) QueryAll(_ context.Context, selector string) ([]surface.Element, error) {
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.doc.wrap(cascadia.QueryAll(e.n, sel)), nil
}

func (e *Element) Click(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	e.doc.record("click", e.n)
	if id := attr(e.n, "aria-controls"); id != "" {
		if target := e.doc.byID(id); target != nil {
			toggleClass(target, "hidden")
			if hasClass(target, "hidden") {
				setAttr(e.n, "aria-expanded", "false")
			} else {
				setAttr(e.n, "aria-expanded", "true")
			}
		}
	}
	if e.n.Data == "input" {
		switch strings.ToLower(attr(e.n, "type")) {
		case "checkbox":
			if hasAttr(e.n, "checked") {
				removeAttr(e.n, "checked")
			} else {
				setAttr(e.n, "checked", "")
			}
			e.doc.record("change", e.n)
		case "radio":
			setAttr(e.n, "checked", "")
			e.doc.record("change", e.n)
		}
	}
	return nil
}

func (e *Element) Focus(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	e.doc.focused = e.n
	e.doc.record("focus", e.n)
	return nil
}

func (e *Element) ScrollIntoView(context.Context) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	e.doc.record("scroll", e.n)
	return nil
}

func (e *Element) SetValue(_ context.Context, v string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	switch e.n.Data {
	case "input":
		setAttr(e.n, "value", v)
	case "textarea":
		setTextContent(e.n, v)
	default:
		return fmt.Errorf("%s has no value", e.n.Data)
	}
	e.doc.record("input", e.n)
	e.doc.record("change", e.n)
	return nil
}

func (e *Element) SetText(_ context.Context, text string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	setTextContent(e.n, text)
	e.doc.record("input", e.n)
	return nil
}

func (e *Element) SelectOption(_ context.Context, v string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if e.n.Data != "select" {
		return fmt.Errorf("%s is not a select", e.n.Data)
	}
	var match *html.Node
	opts := options(e.n)
	for _, o := range opts {
		if optionValue(o) == v {
			match = o
			break
		}
	}
	if match == nil {
		return fmt.Errorf("no option with value %q", v)
	}
	for _, o := range opts {
		removeAttr(o, "selected")
	}
	setAttr(match, "selected", "")
	e.doc.record("change", e.n)
	return nil
}

func (e *Element) AddClass(_ context.Context, class string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if !hasClass(e.n, class) {
		setAttr(e.n, "class", strings.TrimSpace(attr(e.n, "class")+" "+class))
	}
	return nil
}

func (e *Element) RemoveClass(_ context.Context, class string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	removeClass(e.n, class)
	return nil
}

// SetStyle sets one inline declaration; an empty value removes it.
func (e *Element) SetStyle(_ context.Context, property, v string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	property = strings.ToLower(property)
	var decls []string
	found := false
	for _, kv := range styles(e.n) {
		if kv[0] == property {
			found = true
			if v == "" {
				continue
			}
			kv[1] = v
		}
		decls = append(decls, kv[0]+": "+kv[1])
	}
	if !found && v != "" {
		decls = append(decls, property+": "+v)
	}
	if len(decls) == 0 {
		removeAttr(e.n, "style")
		return nil
	}
	setAttr(e.n, "style", strings.Join(decls, "; "))
	return nil
}

func removeClass(n *html.Node, class string) {
	var keep []string
	for _, c := range classes(n) {
		if c != class {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		removeAttr(n, "class")
		return
	}
	setAttr(n, "class", strings.Join(keep, " "))
}

func toggleClass(n *html.Node, class string) {
	if hasClass(n, class) {
		removeClass(n, class)
		return
	}
	setAttr(n, "class", strings.TrimSpace(attr(n, "class")+" "+class))
}
