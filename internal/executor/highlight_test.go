package executor

import (
	"context"
	"testing"
	"time"

	"voiceui/internal/surface/dom"
)

const outlinePage = `<body>
<button id="styled" style="color: red; outline: 1px dashed red">Styled</button>
<button id="bare">Bare</button>
</body>`

func outlineDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(outlinePage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestOutlineFlushRestoresAuthorOutline(t *testing.T) {
	doc := outlineDoc(t)
	o := &Outline{}
	o.Highlight(context.Background(), find(t, doc, "#styled"), time.Hour)

	d := describe(t, doc, "#styled")
	if got := d.InlineStyle("outline"); got != DefaultOutlineStyle {
		t.Fatalf("expected highlight outline, got %q", got)
	}
	if o.Pending() != 1 {
		t.Fatalf("expected one pending highlight, got %d", o.Pending())
	}

	o.Flush()
	d = describe(t, doc, "#styled")
	if got := d.InlineStyle("outline"); got != "1px dashed red" {
		t.Fatalf("expected author outline back, got %q", got)
	}
	if got := d.InlineStyle("color"); got != "red" {
		t.Fatalf("other declarations must survive, got color %q", got)
	}
	if o.Pending() != 0 {
		t.Fatalf("expected nothing pending after flush, got %d", o.Pending())
	}
}

func TestOutlineExpiresWithoutLeavingStyle(t *testing.T) {
	doc := outlineDoc(t)
	o := &Outline{Style: "2px solid green"}
	o.Highlight(context.Background(), find(t, doc, "#bare"), 10*time.Millisecond)
	if got := describe(t, doc, "#bare").InlineStyle("outline"); got != "2px solid green" {
		t.Fatalf("expected custom outline, got %q", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for o.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if o.Pending() != 0 {
		t.Fatal("highlight never expired")
	}
	if _, ok := describe(t, doc, "#bare").Attrs["style"]; ok {
		t.Fatalf("expected style attribute removed, got %q", describe(t, doc, "#bare").Attrs["style"])
	}
}

func TestOverlappingHighlightsRestoreOnce(t *testing.T) {
	doc := outlineDoc(t)
	o := &Outline{}
	el := find(t, doc, "#styled")
	o.Highlight(context.Background(), el, time.Hour)
	o.Highlight(context.Background(), el, time.Hour)
	if o.Pending() != 1 {
		t.Fatalf("overlapping highlight should not stack, got %d pending", o.Pending())
	}
	o.Flush()
	if got := describe(t, doc, "#styled").InlineStyle("outline"); got != "1px dashed red" {
		t.Fatalf("expected author outline back, got %q", got)
	}
}
