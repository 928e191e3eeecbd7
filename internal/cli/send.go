// send.go implements "agimectl send": one message, streamed reply on
// stdout, then exit. Suitable for scripts and piping.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/api"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/reconcile"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/transcript"
	"github.com/agime-dev/agimectl/internal/ui"
)

var (
	sendSession string
	sendAgent   string
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and stream the reply",
	Long: `Send a message to a session and print the agent's reply as it
streams. With --session the message goes to an existing session;
otherwise a new session is created for --agent (or the configured
default agent). Ctrl-C cancels the in-flight turn on the server.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "Existing session id")
	sendCmd.Flags().StringVarP(&sendAgent, "agent", "a", "", "Agent id for a new session")
}

func runSend(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := cmd.Context()

	sessionID, tr, err := prepareSession(ctx, deps, sendSession, sendAgent)
	if err != nil {
		return err
	}

	if _, err := deps.client.SendMessage(ctx, sessionID, args[0]); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	tr.AppendUser(args[0])
	tr.EnsureStreamingTail()
	if deps.logger != nil {
		_ = deps.logger.Append(applog.LogEvent{Event: applog.EventMessageSent, SessionID: sessionID})
	}

	printer := ui.NewPrinter(verbose)
	hooks := stream.Hooks{
		OnTranscript: func() { printer.Sync(tr) },
		OnStatus:     printer.Status,
		OnDone:       printer.Done,
	}
	consumer := stream.NewConsumer(sessionID, tr, hooks, deps.logger)

	sup := reconcile.New(consumer, deps.client, dialFunc(deps), reconcile.Options{}, deps.logger)
	sup.Status = printer.Status
	sup.Update = func() { printer.Sync(tr) }

	// Ctrl-C cancels the turn server-side before exiting.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		if ctx.Err() == nil && sup.Processing() {
			_ = sup.Cancel(context.Background())
		}
	}()

	if err := sup.Run(sigCtx); err != nil && sigCtx.Err() == nil {
		return fmt.Errorf("streaming reply: %w", err)
	}

	// Refresh the cache with the settled session.
	if snap, err := deps.client.GetSession(ctx, sessionID); err == nil {
		_ = deps.cache.SaveSession(snap)
	}
	if sendSession == "" {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}
	return nil
}

// prepareSession resolves or creates the target session and loads its
// history into a transcript.
func prepareSession(ctx context.Context, deps *deps, sessionID, agentID string) (string, *transcript.Transcript, error) {
	if sessionID != "" {
		snap, err := deps.client.GetSession(ctx, sessionID)
		if err != nil {
			return "", nil, fmt.Errorf("fetching session: %w", err)
		}
		return sessionID, transcript.Load(snap.MessagesJSON, snap.IsProcessing), nil
	}

	if agentID == "" {
		agentID = deps.cfg.Chat.DefaultAgent
	}
	if agentID == "" {
		return "", nil, fmt.Errorf("no agent: pass --agent or set chat.default_agent in the config")
	}
	created, err := deps.client.CreateSession(ctx, api.CreateSessionRequest{AgentID: agentID})
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}
	return created.SessionID, transcript.New(), nil
}

func dialFunc(deps *deps) reconcile.DialFunc {
	return func(ctx context.Context, sessionID string, cursor uint64) (reconcile.EventSource, error) {
		return deps.client.OpenStream(ctx, sessionID, cursor)
	}
}
