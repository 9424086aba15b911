package dom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voiceui/internal/surface"
)

const fixture = `<!doctype html><html><body>
<div id="panel" class="card">
  <button id="toggle" aria-controls="details">Details</button>
  <div id="details" class="hidden"><a href="/x">more</a></div>
</div>
<ul>
  <li>one</li>
  <li class="item">two</li>
</ul>
<input id="name" value="bob">
<textarea id="notes">hi</textarea>
<select id="color"><option value="">Pick</option><option value="red">Red</option><option>Blue</option></select>
<span id="far" data-rect="0,900,10,10">far</span>
<div id="edit" contenteditable>text</div>
</body></html>`

func mustParse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(fixture)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func mustQuery(t *testing.T, doc *Document, sel string) surface.Element {
	t.Helper()
	el, err := doc.Query(context.Background(), sel)
	if err != nil {
		t.Fatalf("query %s: %v", sel, err)
	}
	if el == nil {
		t.Fatalf("query %s: no match", sel)
	}
	return el
}

func TestQueryNoMatchIsNil(t *testing.T) {
	doc := mustParse(t)
	el, err := doc.Query(context.Background(), "#missing")
	if err != nil || el != nil {
		t.Fatalf("expected nil, nil; got %v, %v", el, err)
	}
	if _, err := doc.Query(context.Background(), "[[["); err == nil {
		t.Fatalf("expected selector error")
	}
}

func TestDescribeLayoutAndSiblings(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	vp, _ := doc.Viewport(ctx)

	d, err := mustQuery(t, doc, "li.item").Describe(ctx)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if d.SameTagSiblings != 2 || d.TypeIndex != 2 {
		t.Fatalf("expected 2 of 2 siblings, got %d of %d", d.TypeIndex, d.SameTagSiblings)
	}
	if !d.Box.Visible(vp) {
		t.Fatalf("expected default box visible, got %+v", d.Box)
	}

	far, _ := mustQuery(t, doc, "#far").Describe(ctx)
	if far.Box.Visible(vp) {
		t.Fatalf("expected element below viewport to be invisible: %+v", far.Box)
	}
	link, _ := mustQuery(t, doc, "#details a").Describe(ctx)
	if link.Box != (surface.Rect{}) {
		t.Fatalf("expected zero box under hidden ancestor, got %+v", link.Box)
	}
	edit, _ := mustQuery(t, doc, "#edit").Describe(ctx)
	if !edit.Editable() {
		t.Fatalf("expected contenteditable to be editable")
	}
	sel, _ := mustQuery(t, doc, "#color").Describe(ctx)
	if sel.Value != "" {
		t.Fatalf("expected first option value, got %q", sel.Value)
	}
}

func TestClickTogglesControlledElement(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	if err := mustQuery(t, doc, "#toggle").Click(ctx); err != nil {
		t.Fatalf("click: %v", err)
	}
	d, _ := mustQuery(t, doc, "#details").Describe(ctx)
	if d.HasClass("hidden") {
		t.Fatalf("expected details shown after click")
	}
	ev := doc.Events()
	if len(ev) != 1 || ev[0].Type != "click" || ev[0].ID != "toggle" {
		t.Fatalf("unexpected events: %+v", ev)
	}
}

func TestSetValueAndSelect(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	if err := mustQuery(t, doc, "#name").SetValue(ctx, "alice"); err != nil {
		t.Fatalf("set value: %v", err)
	}
	if err := mustQuery(t, doc, "#notes").SetValue(ctx, "bye"); err != nil {
		t.Fatalf("set textarea: %v", err)
	}
	color := mustQuery(t, doc, "#color")
	if err := color.SelectOption(ctx, "Blue"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := color.SelectOption(ctx, "green"); err == nil {
		t.Fatalf("expected error for unknown option")
	}
	d, _ := color.Describe(ctx)
	if d.Value != "Blue" {
		t.Fatalf("expected Blue, got %q", d.Value)
	}
	notes, _ := mustQuery(t, doc, "#notes").Describe(ctx)
	if notes.Value != "bye" {
		t.Fatalf("expected textarea value bye, got %q", notes.Value)
	}

	var types []string
	for _, e := range doc.Events() {
		types = append(types, e.Type)
	}
	if got := strings.Join(types, ","); got != "input,change,input,change,change" {
		t.Fatalf("unexpected event sequence %s", got)
	}
}

func TestClassAndStyleMutations(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	panel := mustQuery(t, doc, "#panel")
	_ = panel.AddClass(ctx, "hidden")
	_ = panel.SetStyle(ctx, "display", "none")
	d, _ := panel.Describe(ctx)
	if !d.HasClass("hidden") || d.Attr("style") != "display: none" {
		t.Fatalf("unexpected attrs %+v", d.Attrs)
	}
	_ = panel.RemoveClass(ctx, "hidden")
	_ = panel.SetStyle(ctx, "display", "")
	d, _ = panel.Describe(ctx)
	if d.HasClass("hidden") || d.Attr("style") != "" || d.Attr("class") != "card" {
		t.Fatalf("unexpected attrs after revert %+v", d.Attrs)
	}
}

func TestParentStopsAtBody(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	p, err := mustQuery(t, doc, "#panel").Parent(ctx)
	if err != nil {
		t.Fatalf("parent: %v", err)
	}
	body, _ := p.Describe(ctx)
	if body.Tag != "body" {
		t.Fatalf("expected body, got %s", body.Tag)
	}
	above, err := p.Parent(ctx)
	if err != nil || above != nil {
		t.Fatalf("expected nil above body, got %v %v", above, err)
	}
}

func TestDetachedElement(t *testing.T) {
	ctx := context.Background()
	doc := mustParse(t)
	el := mustQuery(t, doc, "#far")
	n := el.(*Element).Node()
	n.Parent.RemoveChild(n)
	if err := el.Click(ctx); !errors.Is(err, surface.ErrDetached) {
		t.Fatalf("expected ErrDetached, got %v", err)
	}
}
