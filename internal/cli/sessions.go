// sessions.go implements "agimectl sessions" and its subcommands for
// listing, inspecting, and managing chat sessions.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/api"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/report"
	"github.com/agime-dev/agimectl/internal/transcript"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage chat sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRm,
}

var sessionsPinCmd = &cobra.Command{
	Use:   "pin <session-id>",
	Short: "Pin or unpin a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsPin,
}

var sessionsArchiveCmd = &cobra.Command{
	Use:   "archive <session-id>",
	Short: "Archive a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsArchive,
}

var sessionsStatsCmd = &cobra.Command{
	Use:   "stats <session-id>",
	Short: "Summarize stream health for a session from the local log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsStats,
}

var unpin bool

func init() {
	sessionsPinCmd.Flags().BoolVar(&unpin, "unpin", false, "Remove the pin instead")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsPinCmd)
	sessionsCmd.AddCommand(sessionsArchiveCmd)
	sessionsCmd.AddCommand(sessionsStatsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	if offline {
		cached, err := deps.cache.ListSessions(100)
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		if len(cached) == 0 {
			fmt.Println("No cached sessions.")
			return nil
		}
		for _, cs := range cached {
			fmt.Printf("  %-36s  %-12s  %s\n", cs.SessionID, flags(cs.IsProcessing, false), title(cs.Title, cs.Preview))
		}
		return nil
	}

	list, err := deps.client.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(list) == 0 {
		fmt.Println("No sessions. Start one with: agimectl chat")
		return nil
	}
	for _, item := range list {
		fmt.Printf("  %-36s  %-12s  %s\n", item.SessionID, flags(item.IsProcessing, item.Pinned), title(item.Title, item.LastMessagePreview))
	}
	return nil
}

func flags(processing, pinned bool) string {
	var parts []string
	if processing {
		parts = append(parts, "running")
	}
	if pinned {
		parts = append(parts, "pinned")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func title(t, preview string) string {
	if t != "" {
		return t
	}
	if len(preview) > 60 {
		return preview[:57] + "..."
	}
	if preview != "" {
		return preview
	}
	return "(untitled)"
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	var msgs []*transcript.Message
	if offline {
		msgs, err = deps.cache.GetMessages(args[0])
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		if len(msgs) == 0 {
			return fmt.Errorf("session %s is not in the local cache", args[0])
		}
	} else {
		snap, err := deps.client.GetSession(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("fetching session: %w", err)
		}
		if err := deps.cache.SaveSession(snap); err != nil && deps.logger != nil {
			_ = deps.logger.Append(applog.LogEvent{Event: applog.EventSessionLoaded, SessionID: args[0], Error: err.Error()})
		}
		msgs = transcript.Load(snap.MessagesJSON, snap.IsProcessing).Messages()
	}

	printTranscript(msgs)
	return nil
}

func printTranscript(msgs []*transcript.Message) {
	for _, msg := range msgs {
		switch msg.Role {
		case transcript.RoleUser:
			fmt.Printf("> %s\n\n", msg.Content)
		case transcript.RoleAssistant:
			if verbose && msg.Thinking != "" {
				fmt.Printf("[thinking] %s\n", msg.Thinking)
			}
			for _, call := range msg.ToolCalls {
				fmt.Printf("[tool] %s\n", call.Result)
			}
			if msg.Content != "" {
				fmt.Printf("%s\n\n", msg.Content)
			}
		}
	}
}

func runSessionsRm(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.client.DeleteSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if err := deps.cache.DeleteSession(args[0]); err != nil {
		return fmt.Errorf("evicting cached session: %w", err)
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runSessionsPin(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	pinned := !unpin
	if err := deps.client.UpdateSession(cmd.Context(), args[0], api.UpdateSessionRequest{Pinned: &pinned}); err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	if pinned {
		fmt.Printf("Pinned %s\n", args[0])
	} else {
		fmt.Printf("Unpinned %s\n", args[0])
	}
	return nil
}

func runSessionsArchive(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	if err := deps.client.ArchiveSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("archiving session: %w", err)
	}
	fmt.Printf("Archived %s\n", args[0])
	return nil
}

func runSessionsStats(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	if deps.logger == nil {
		return fmt.Errorf("no event log available")
	}
	r, err := report.Generate(deps.logger, args[0])
	if err != nil {
		return err
	}
	fmt.Print(report.FormatReport(r))
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search cached transcripts",
	Long: `Search the locally cached transcripts for a term. The cache is
populated whenever a session is shown or chatted with; run without
--offline to refresh sessions first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	hits, err := deps.cache.SearchMessages(args[0], 50)
	if err != nil {
		return fmt.Errorf("searching cache: %w", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, hit := range hits {
		fmt.Printf("  %-36s  %-9s  %s\n", hit.SessionID, hit.Role, firstLine(hit.Content))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
