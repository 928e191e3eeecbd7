// chat.go implements "agimectl chat": the interactive chat view for one
// session.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/tui"
)

var chatAgent string

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Chat with an agent interactively",
	Long: `Open the interactive chat view. With a session id the existing
conversation is loaded, and if the agent is still mid-turn the live
stream is picked up where it left off. Without arguments a new session
is created for --agent (or the configured default agent).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "Agent id for a new session")
}

func runChat(cmd *cobra.Command, args []string) error {
	if !tui.IsTTY() {
		return fmt.Errorf("chat needs a terminal; use \"agimectl send\" when piping")
	}

	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := cmd.Context()

	var snap *api.SessionSnapshot
	if len(args) == 1 {
		snap, err = deps.client.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("fetching session: %w", err)
		}
	} else {
		agentID := chatAgent
		if agentID == "" {
			agentID = deps.cfg.Chat.DefaultAgent
		}
		if agentID == "" {
			return fmt.Errorf("no agent: pass --agent or set chat.default_agent in the config")
		}
		created, err := deps.client.CreateSession(ctx, api.CreateSessionRequest{AgentID: agentID})
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		snap = &api.SessionSnapshot{
			SessionID:    created.SessionID,
			AgentID:      created.AgentID,
			MessagesJSON: "[]",
		}
	}

	if err := tui.RunChat(deps.client, deps.cfg, deps.logger, snap); err != nil {
		return fmt.Errorf("running chat: %w", err)
	}

	// Refresh the cache with whatever the conversation became.
	if latest, err := deps.client.GetSession(ctx, snap.SessionID); err == nil {
		_ = deps.cache.SaveSession(latest)
	}
	return nil
}
