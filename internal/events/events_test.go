package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"voiceui/internal/db"
	"voiceui/internal/domain"
	"voiceui/internal/events"
	"voiceui/internal/migrate"
)

func newJournal(t *testing.T) events.Journal {
	t.Helper()
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return events.Journal{DB: conn, Logger: zerolog.Nop()}
}

func outcome(cmd string, path domain.Path, ok bool) domain.Outcome {
	o := domain.NewOutcome(cmd, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if ok {
		return o.Succeed(path, "done")
	}
	return o.Fail(path, "failed", domain.ErrNoCandidates)
}

func TestJournalListFilters(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	for _, o := range []domain.Outcome{
		outcome("one", domain.PathStatic, true),
		outcome("two", domain.PathAI, false),
		outcome("three", domain.PathStatic, false),
	} {
		if err := j.Append(ctx, "s1", o); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Append(ctx, "s2", outcome("four", domain.PathAI, true)); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := j.List(ctx, events.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].Command != "four" || all[3].Command != "one" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	static, err := j.List(ctx, events.Filter{Path: domain.PathStatic, Status: domain.StatusError})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(static) != 1 || static[0].Command != "three" {
		t.Fatalf("unexpected filtered list %+v", static)
	}
	if static[0].Error == "" || static[0].Err == nil {
		t.Fatalf("expected error text restored")
	}

	s2, err := j.List(ctx, events.Filter{Session: "s2"})
	if err != nil || len(s2) != 1 || s2[0].Session != "s2" {
		t.Fatalf("unexpected session list %+v %v", s2, err)
	}

	limited, err := j.List(ctx, events.Filter{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d %v", len(limited), err)
	}
}

func TestJournalObserverKeepsPlan(t *testing.T) {
	j := newJournal(t)
	o := outcome("pick blue", domain.PathAI, true)
	o.Plan = &domain.ActionPlan{Confidence: 0.9, Reasoning: "clear", Steps: []domain.ActionStep{{Kind: domain.KindSelect, Target: "#color", Value: "blue"}}}
	j.For("s1").Observe(o)

	got, err := j.List(context.Background(), events.Filter{Session: "s1"})
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v %+v", err, got)
	}
	if got[0].Plan == nil || got[0].Plan.Steps[0].Value != "blue" {
		t.Fatalf("plan not round tripped: %+v", got[0].Plan)
	}
}

func TestAfterAndLatestSeq(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	if seq, err := j.LatestSeq(ctx); err != nil || seq != 0 {
		t.Fatalf("expected empty journal seq 0, got %d %v", seq, err)
	}
	for _, cmd := range []string{"a", "b", "c"} {
		if err := j.Append(ctx, "", outcome(cmd, domain.PathStatic, true)); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := j.LatestSeq(ctx)
	if err != nil || latest != 3 {
		t.Fatalf("expected seq 3, got %d %v", latest, err)
	}
	recs, err := j.After(ctx, 1, 10)
	if err != nil || len(recs) != 2 || recs[0].Command != "b" || recs[1].Seq != 3 {
		t.Fatalf("unexpected tail %+v %v", recs, err)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	j := newJournal(t)
	o := outcome("x", domain.PathStatic, true)
	if err := j.Append(context.Background(), "", o); err != nil {
		t.Fatal(err)
	}
	if err := j.Append(context.Background(), "", o); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
}

func TestFanout(t *testing.T) {
	var got []string
	f := events.Fanout{
		domain.ObserverFunc(func(o domain.Outcome) { got = append(got, "a:"+o.Command) }),
		nil,
		domain.ObserverFunc(func(o domain.Outcome) { got = append(got, "b:"+o.Command) }),
	}
	f.Observe(domain.Outcome{Command: "go"})
	if strings.Join(got, ",") != "a:go,b:go" {
		t.Fatalf("unexpected delivery %v", got)
	}
}

func TestHubDeliversSessionMessages(t *testing.T) {
	hub := events.NewHub(zerolog.Nop())
	hub.CheckOrigin = func(*http.Request) bool { return true }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?session=s1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration is asynchronous; publish until the subscriber sees a frame.
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	received := make(chan events.Message, 1)
	go func() {
		var m events.Message
		if err := conn.ReadJSON(&m); err == nil {
			received <- m
		}
	}()
	for time.Now().Before(deadline) {
		hub.For("other").Observe(outcome("ignored", domain.PathStatic, true))
		hub.For("s1").Observe(outcome("wanted", domain.PathStatic, true))
		select {
		case m := <-received:
			if m.Type != events.TypeOutcome || m.Outcome == nil || m.Outcome.Command != "wanted" {
				t.Fatalf("unexpected message %+v", m)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("no message received")
}

func TestHubPublishNeverBlocks(t *testing.T) {
	hub := events.NewHub(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		steps := hub.Steps("s1")
		for i := 0; i < 1000; i++ {
			steps(i, domain.ActionStep{Kind: domain.KindClick, Target: "#a"}, true)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked without a running hub")
	}
}
