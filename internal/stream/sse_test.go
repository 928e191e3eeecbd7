package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(frames []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
	}
}

func TestSourceParsesFrames(t *testing.T) {
	frames := []string{
		": ping\n\n",
		"event: text\nid: 1\ndata: {\"content\":\"hi\"}\n\n",
		"event: done\nid: 2\ndata: {\"status\":\"completed\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(frames))
	defer srv.Close()

	src, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	var got []Event
	for src.Next() {
		got = append(got, src.Current())
		if src.Current().Type == EventDone {
			break
		}
	}

	if len(got) != 2 {
		t.Fatalf("events = %d, want 2 (keep-alive comment skipped)", len(got))
	}
	if got[0].Type != EventText || got[0].ID != 1 || string(got[0].Data) != `{"content":"hi"}` {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != EventDone || got[1].ID != 2 {
		t.Errorf("second event = %+v", got[1])
	}
}

func TestSourceMultilineData(t *testing.T) {
	frames := []string{
		"event: text\ndata: line one\ndata: line two\n\n",
	}
	srv := httptest.NewServer(sseHandler(frames))
	defer srv.Close()

	src, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if !src.Next() {
		t.Fatalf("Next = false, err %v", src.Err())
	}
	if got := string(src.Current().Data); got != "line one\nline two" {
		t.Errorf("data = %q", got)
	}
}

func TestSourceServerDropIsTransportError(t *testing.T) {
	// Server hangs up without a done event.
	frames := []string{"event: text\nid: 3\ndata: {\"content\":\"x\"}\n\n"}
	srv := httptest.NewServer(sseHandler(frames))
	defer srv.Close()

	src, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if !src.Next() {
		t.Fatalf("expected one event, err %v", src.Err())
	}
	if src.Next() {
		t.Fatal("expected stream end")
	}
	if src.Err() == nil {
		t.Error("server drop without done must surface a transport error")
	}
}

func TestSourceCloseIsCleanAndIdempotent(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	src, err := Open(context.Background(), srv.Client(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- src.Next() }()

	src.Close()
	src.Close()

	if next := <-done; next {
		t.Error("Next = true after Close")
	}
	if err := src.Err(); err != nil {
		t.Errorf("local close reported transport error: %v", err)
	}
}

func TestOpenRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := Open(context.Background(), srv.Client(), srv.URL, nil); err == nil {
		t.Error("Open succeeded on 403")
	}
}
