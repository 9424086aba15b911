package matcher

import (
	"context"
	"errors"
	"testing"

	"voiceui/internal/domain"
	"voiceui/internal/executor"
	"voiceui/internal/surface/dom"
)

const page = `<body>
<div id="notifications" data-voice="toggle notifications" data-voice-action="toggle">
  <button id="notif-btn" aria-controls="notif-panel">Notifications</button>
  <div id="notif-panel">3 new</div>
</div>
<button id="play" data-voice="play" data-voice-intents="start music, play music">Play</button>
<button id="stop" data-voice="stop music">Stop</button>
<div id="weird" data-voice="dance" data-voice-action="dance">?</div>
<button id="empty" data-voice="!!!">noise</button>
</body>`

func mustDoc(t *testing.T) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(page)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Toggle   Notifications! ": "toggle notifications",
		"Hey, play\tmusic...":       "hey play music",
		"":                          "",
		"snake_case stays":          "snake_case stays",
	}
	for in, want := range cases {
		got := Normalize(in)
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
		if again := Normalize(got); again != got {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, got, again)
		}
	}
}

func TestFindCandidatesContainmentAndOrder(t *testing.T) {
	doc := mustDoc(t)
	matches, err := FindCandidates(context.Background(), doc, "please play music now")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	// The primary phrase is checked first and wins for this element.
	if matches[0].Phrase != "play" {
		t.Fatalf("expected first matching phrase play, got %q", matches[0].Phrase)
	}
	want := float64(len("play")) / float64(len("please play music now"))
	if matches[0].Confidence != want {
		t.Fatalf("expected confidence %v, got %v", want, matches[0].Confidence)
	}

	matches, _ = FindCandidates(context.Background(), doc, "stop music and play")
	if len(matches) != 2 {
		t.Fatalf("expected two matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Confidence < matches[i].Confidence {
			t.Fatalf("matches not sorted: %v", matches)
		}
	}
	if matches[0].Voice != "stop music" {
		t.Fatalf("expected longer phrase first, got %q", matches[0].Voice)
	}
}

func TestFindCandidatesIgnoresEmptyPhrases(t *testing.T) {
	doc := mustDoc(t)
	matches, _ := FindCandidates(context.Background(), doc, "something unrelated")
	if len(matches) != 0 {
		t.Fatalf("expected punctuation-only phrase to be ignored, got %d matches", len(matches))
	}
	matches, _ = FindCandidates(context.Background(), doc, "   ")
	if len(matches) != 0 {
		t.Fatalf("expected no candidates for empty transcript")
	}
}

func TestResolveToggleNotifications(t *testing.T) {
	doc := mustDoc(t)
	var seen []domain.Outcome
	m := Matcher{
		Executor: executor.Executor{},
		Observer: domain.ObserverFunc(func(o domain.Outcome) { seen = append(seen, o) }),
	}
	o := m.ResolveAndExecute(context.Background(), doc, "Toggle notifications")
	if !o.Succeeded() || o.Path != domain.PathStatic {
		t.Fatalf("expected static success, got %+v", o)
	}
	if o.Result != `Executed toggle on "toggle notifications"` {
		t.Fatalf("unexpected result %q", o.Result)
	}
	if len(seen) != 1 || seen[0].ID != o.ID {
		t.Fatalf("expected exactly one observed outcome, got %d", len(seen))
	}
	panel, _ := doc.Query(context.Background(), "#notif-panel")
	d, _ := panel.Describe(context.Background())
	if !d.HasClass("hidden") {
		t.Fatalf("expected panel toggled via nested button")
	}
}

func TestResolveNoMatch(t *testing.T) {
	doc := mustDoc(t)
	o := Matcher{Executor: executor.Executor{}}.ResolveAndExecute(context.Background(), doc, "open settings")
	if o.Succeeded() || o.Result != ResultNoMatch || !errors.Is(o.Err, domain.ErrNoCandidates) {
		t.Fatalf("expected no-candidates failure, got %+v", o)
	}
	if len(doc.Events()) != 0 {
		t.Fatalf("expected no surface mutation")
	}
}

func TestResolveUnknownDeclaredAction(t *testing.T) {
	doc := mustDoc(t)
	o := Matcher{Executor: executor.Executor{}}.ResolveAndExecute(context.Background(), doc, "dance")
	if o.Succeeded() || !errors.Is(o.Err, domain.ErrUnknownAction) {
		t.Fatalf("expected unknown action failure, got %+v", o)
	}
	if o.Result != "Failed to execute dance" {
		t.Fatalf("unexpected result %q", o.Result)
	}
}
