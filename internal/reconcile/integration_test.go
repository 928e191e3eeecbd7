package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/testutil"
	"github.com/agime-dev/agimectl/internal/transcript"
)

func startServer(t *testing.T) (*testutil.Server, *api.Client) {
	t.Helper()
	srv, err := testutil.NewServer()
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, api.New(srv.URL(), "", 5*time.Second)
}

func clientDial(client *api.Client) DialFunc {
	return func(ctx context.Context, sessionID string, cursor uint64) (EventSource, error) {
		return client.OpenStream(ctx, sessionID, cursor)
	}
}

func TestSupervisorOverLiveStream(t *testing.T) {
	srv, client := startServer(t)
	srv.SeedSession(&api.SessionSnapshot{SessionID: "sess-1", IsProcessing: true, MessagesJSON: "[]"})
	srv.Script("sess-1",
		stream.Event{Type: stream.EventText, ID: 1, Data: []byte(`{"content":"working "}`)},
		stream.Event{Type: stream.EventText, ID: 2, Data: []byte(`{"content":"on it"}`)},
		stream.Event{Type: stream.EventDone, ID: 3, Data: []byte(`{"status":"completed"}`)},
	)

	tr := transcript.New()
	consumer := stream.NewConsumer("sess-1", tr, stream.Hooks{}, nil)
	sup := New(consumer, client, clientDial(client), fastOptions(), nil)

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sup.Processing() {
		t.Fatal("processing still true after streamed done")
	}
	msgs := tr.Messages()
	if len(msgs) != 1 || msgs[0].Content != "working on it" {
		t.Fatalf("unexpected transcript: %+v", msgs)
	}
	if got := consumer.Cursor(); got != 3 {
		t.Errorf("cursor = %d, want 3", got)
	}
}

func TestSupervisorPollReconcilesOverLiveStream(t *testing.T) {
	final := `[{"role":"user","content":"hi"},{"role":"assistant","content":"the whole reply"}]`
	srv, client := startServer(t)
	srv.SeedSession(&api.SessionSnapshot{SessionID: "sess-1", IsProcessing: true, MessagesJSON: "[]"})
	srv.HoldStream("sess-1")
	srv.Script("sess-1",
		stream.Event{Type: stream.EventText, ID: 1, Data: []byte(`{"content":"the whole"}`)},
	)

	opts := fastOptions()
	opts.PollEvery = 20 * time.Millisecond

	tr := transcript.New()
	consumer := stream.NewConsumer("sess-1", tr, stream.Hooks{}, nil)
	sup := New(consumer, client, clientDial(client), opts, nil)

	errc := make(chan error, 1)
	go func() { errc <- sup.Run(context.Background()) }()

	// The backend finishes the turn but its done event is never streamed.
	waitFor(t, "partial event applied", func() bool { return consumer.Cursor() == 1 })
	srv.EndProcessing("sess-1", final)

	waitFor(t, "poll reconciliation", func() bool { return !sup.Processing() })
	if err := <-errc; err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := consumer.State(); got != stream.StateClosedTerminal {
		t.Fatalf("state = %v, want %v", got, stream.StateClosedTerminal)
	}
	msgs := tr.Messages()
	if len(msgs) != 2 || msgs[1].Content != "the whole reply" {
		t.Fatalf("transcript not reconciled to persisted history: %+v", msgs)
	}
}
