package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"voiceui/internal/domain"
	"voiceui/internal/surface"
	"voiceui/internal/surface/dom"
)

const page = `<body>
<div id="notif"><button id="notif-btn" aria-controls="notif-body">Toggle</button><div id="notif-body">on</div></div>
<div id="plain">content</div>
<div id="gone" style="display:none">gone</div>
<div id="form"><label>Name</label><input id="name"></div>
<div id="colors"><select id="color"><option value="">Pick</option><option value="red">Red</option><option value="blue">Blue</option></select></div>
<div id="stars"><button id="s1">1</button><button id="s2">2</button><button id="s3">3</button></div>
<div id="editable" contenteditable="true">old</div>
<a id="link" href="/x">x</a>
</body>`

func setup(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func find(t *testing.T, doc *dom.Document, sel string) surface.Element {
	t.Helper()
	el, err := doc.Query(context.Background(), sel)
	if err != nil || el == nil {
		t.Fatalf("query %s: %v", sel, err)
	}
	return el
}

func describe(t *testing.T, doc *dom.Document, sel string) surface.Description {
	t.Helper()
	d, err := find(t, doc, sel).Describe(context.Background())
	if err != nil {
		t.Fatalf("describe %s: %v", sel, err)
	}
	return d
}

func lastEvent(t *testing.T, doc *dom.Document) dom.Event {
	t.Helper()
	ev := doc.Events()
	if len(ev) == 0 {
		t.Fatalf("no events recorded")
	}
	return ev[len(ev)-1]
}

func TestToggleDelegatesToNestedButton(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	if !ex.Apply(context.Background(), find(t, doc, "#notif"), domain.Toggle{}) {
		t.Fatalf("expected toggle success")
	}
	if ev := lastEvent(t, doc); ev.Type != "click" || ev.ID != "notif-btn" {
		t.Fatalf("expected click on nested button, got %+v", ev)
	}
	if !describe(t, doc, "#notif-body").HasClass("hidden") {
		t.Fatalf("expected controlled body hidden")
	}
}

func TestToggleFallsBackToVisibilityMarker(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	ctx := context.Background()
	if !ex.Apply(ctx, find(t, doc, "#plain"), domain.Toggle{}) {
		t.Fatalf("expected toggle success")
	}
	if !describe(t, doc, "#plain").HasClass("hidden") {
		t.Fatalf("expected hidden class added")
	}
	if !ex.Apply(ctx, find(t, doc, "#gone"), domain.Toggle{}) {
		t.Fatalf("expected toggle success")
	}
	if d := describe(t, doc, "#gone"); d.Attr("style") != "" || d.HasClass("hidden") {
		t.Fatalf("expected inline display cleared, got %+v", d.Attrs)
	}
}

func TestShowAndHide(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	ctx := context.Background()
	if !ex.Apply(ctx, find(t, doc, "#plain"), domain.Hide{}) {
		t.Fatalf("hide failed")
	}
	if !describe(t, doc, "#plain").HasClass("hidden") {
		t.Fatalf("expected hidden")
	}
	if !ex.Apply(ctx, find(t, doc, "#plain"), domain.Show{}) {
		t.Fatalf("show failed")
	}
	if describe(t, doc, "#plain").HasClass("hidden") {
		t.Fatalf("expected shown")
	}
	// Visible container with a button: hide clicks the button.
	if !ex.Apply(ctx, find(t, doc, "#notif"), domain.Hide{}) {
		t.Fatalf("hide with button failed")
	}
	if ev := lastEvent(t, doc); ev.ID != "notif-btn" {
		t.Fatalf("expected nested button click, got %+v", ev)
	}
}

func TestFocusPrefersNestedInput(t *testing.T) {
	doc := setup(t)
	if !(Executor{}).Apply(context.Background(), find(t, doc, "#form"), domain.Focus{}) {
		t.Fatalf("focus failed")
	}
	f := doc.Focused()
	if f == nil {
		t.Fatalf("nothing focused")
	}
	d, _ := f.Describe(context.Background())
	if d.Attr("id") != "name" {
		t.Fatalf("expected #name focused, got %s", d.Attr("id"))
	}
}

func TestSelectFirstNonEmptyOption(t *testing.T) {
	doc := setup(t)
	if !(Executor{}).Apply(context.Background(), find(t, doc, "#colors"), domain.Select{}) {
		t.Fatalf("select failed")
	}
	if v := describe(t, doc, "#color").Value; v != "red" {
		t.Fatalf("expected red, got %q", v)
	}
	if ev := lastEvent(t, doc); ev.Type != "change" {
		t.Fatalf("expected change event, got %+v", ev)
	}
}

func TestSelectSuppliedValue(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	ctx := context.Background()
	if !ex.Apply(ctx, find(t, doc, "#color"), domain.Select{Option: "blue"}) {
		t.Fatalf("select blue failed")
	}
	if v := describe(t, doc, "#color").Value; v != "blue" {
		t.Fatalf("expected blue, got %q", v)
	}
	if !ex.Apply(ctx, find(t, doc, "#color"), domain.Select{Option: "Red"}) {
		t.Fatalf("select by label failed")
	}
	if v := describe(t, doc, "#color").Value; v != "red" {
		t.Fatalf("expected red, got %q", v)
	}
	if ex.Apply(ctx, find(t, doc, "#color"), domain.Select{Option: "green"}) {
		t.Fatalf("expected failure for unknown option")
	}
	if ex.Apply(ctx, find(t, doc, "#plain"), domain.Select{Option: "blue"}) {
		t.Fatalf("expected failure without a select control")
	}
}

func TestTypeRequiresEditableTarget(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	ctx := context.Background()
	if !ex.Apply(ctx, find(t, doc, "#name"), domain.Type{Text: "Hi Mom"}) {
		t.Fatalf("type into input failed")
	}
	if v := describe(t, doc, "#name").Value; v != "Hi Mom" {
		t.Fatalf("expected value set, got %q", v)
	}
	if !ex.Apply(ctx, find(t, doc, "#editable"), domain.Type{Text: "new"}) {
		t.Fatalf("type into contenteditable failed")
	}
	if txt := describe(t, doc, "#editable").Text; txt != "new" {
		t.Fatalf("expected text replaced, got %q", txt)
	}
	if ex.Apply(ctx, find(t, doc, "#link"), domain.Type{Text: "x"}) {
		t.Fatalf("expected failure typing into a link")
	}
}

func TestRateUsesPolicy(t *testing.T) {
	doc := setup(t)
	ctx := context.Background()
	if !(Executor{}).Apply(ctx, find(t, doc, "#stars"), domain.Rate{}) {
		t.Fatalf("rate failed")
	}
	if ev := lastEvent(t, doc); ev.ID != "s3" {
		t.Fatalf("expected highest star, got %+v", ev)
	}
	lowest := RatePolicyFunc(func(_ context.Context, c []surface.Element) surface.Element { return c[0] })
	if !(Executor{Rate: lowest}).Apply(ctx, find(t, doc, "#stars"), domain.Rate{}) {
		t.Fatalf("rate failed")
	}
	if ev := lastEvent(t, doc); ev.ID != "s1" {
		t.Fatalf("expected custom policy pick, got %+v", ev)
	}
	if (Executor{}).Apply(ctx, find(t, doc, "#plain"), domain.Rate{}) {
		t.Fatalf("expected failure without rating controls")
	}
}

func TestWaitUsesInjectedSleep(t *testing.T) {
	doc := setup(t)
	var slept time.Duration
	ex := Executor{Sleep: func(_ context.Context, d time.Duration) { slept = d }}
	if !ex.Apply(context.Background(), find(t, doc, "#plain"), domain.Wait{Duration: 250 * time.Millisecond}) {
		t.Fatalf("wait failed")
	}
	if slept != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", slept)
	}
}

func TestHighlightDurations(t *testing.T) {
	doc := setup(t)
	var mu sync.Mutex
	var got []time.Duration
	ex := Executor{Highlighter: HighlighterFunc(func(_ context.Context, _ surface.Element, d time.Duration) {
		mu.Lock()
		got = append(got, d)
		mu.Unlock()
	})}
	ctx := context.Background()
	ex.Apply(ctx, find(t, doc, "#link"), domain.Scroll{})
	ex.Apply(ctx, find(t, doc, "#link"), domain.Click{})
	ex.Apply(ctx, find(t, doc, "#link"), domain.Custom{Description: "note"})
	if len(got) != 2 || got[0] != ScrollHighlight || got[1] != DefaultHighlight {
		t.Fatalf("unexpected highlight windows %v", got)
	}
}

type panicky struct{ surface.Element }

func (panicky) Click(context.Context) error { panic("boom") }

func TestFailuresBecomeFalse(t *testing.T) {
	doc := setup(t)
	ex := Executor{}
	ctx := context.Background()
	if ex.Apply(ctx, nil, domain.Click{}) {
		t.Fatalf("expected false for missing element")
	}
	if ex.Apply(ctx, panicky{find(t, doc, "#link")}, domain.Click{}) {
		t.Fatalf("expected false after panic")
	}
}
