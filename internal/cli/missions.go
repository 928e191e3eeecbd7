// missions.go implements "agimectl missions" and its subcommands for
// driving long-running agent missions.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agime-dev/agimectl/internal/api"
	"github.com/agime-dev/agimectl/internal/mission"
	"github.com/agime-dev/agimectl/internal/reconcile"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/transcript"
	"github.com/agime-dev/agimectl/internal/ui"
)

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List and drive agent missions",
}

var missionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List missions",
	RunE:  runMissionsList,
}

var missionsShowCmd = &cobra.Command{
	Use:   "show <mission-id>",
	Short: "Show a mission's plan and goal tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runMissionsShow,
}

var (
	missionAgent   string
	missionContext string
	missionMode    string
)

var missionsNewCmd = &cobra.Command{
	Use:   "new <goal>",
	Short: "Create a mission",
	Args:  cobra.ExactArgs(1),
	RunE:  runMissionsNew,
}

var missionsStartCmd = &cobra.Command{
	Use:   "start <mission-id>",
	Short: "Start a planned or paused mission",
	Args:  cobra.ExactArgs(1),
	RunE:  missionAction("start"),
}

var missionsPauseCmd = &cobra.Command{
	Use:   "pause <mission-id>",
	Short: "Pause a running mission",
	Args:  cobra.ExactArgs(1),
	RunE:  missionAction("pause"),
}

var missionsCancelCmd = &cobra.Command{
	Use:   "cancel <mission-id>",
	Short: "Cancel a mission",
	Args:  cobra.ExactArgs(1),
	RunE:  missionAction("cancel"),
}

var missionsRmCmd = &cobra.Command{
	Use:   "rm <mission-id>",
	Short: "Delete a mission",
	Args:  cobra.ExactArgs(1),
	RunE:  missionAction("rm"),
}

var missionsStepCmd = &cobra.Command{
	Use:   "step <mission-id> <index> (approve|reject|skip)",
	Short: "Resolve a checkpointed step",
	Args:  cobra.ExactArgs(3),
	RunE:  runMissionsStep,
}

var goalFeedback string

var missionsGoalCmd = &cobra.Command{
	Use:   "goal <mission-id> <goal-id> (approve|reject|pivot)",
	Short: "Resolve a goal awaiting approval",
	Args:  cobra.ExactArgs(3),
	RunE:  runMissionsGoal,
}

var missionsWatchCmd = &cobra.Command{
	Use:   "watch <mission-id>",
	Short: "Follow a mission's live output and goal changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runMissionsWatch,
}

func init() {
	missionsNewCmd.Flags().StringVarP(&missionAgent, "agent", "a", "", "Agent id")
	missionsNewCmd.Flags().StringVar(&missionContext, "context", "", "Extra context for planning")
	missionsNewCmd.Flags().StringVar(&missionMode, "mode", string(mission.ModeSequential), "Execution mode: sequential or adaptive")
	missionsGoalCmd.Flags().StringVar(&goalFeedback, "feedback", "", "Feedback or alternative approach for the agent")

	missionsCmd.AddCommand(missionsListCmd)
	missionsCmd.AddCommand(missionsShowCmd)
	missionsCmd.AddCommand(missionsNewCmd)
	missionsCmd.AddCommand(missionsStartCmd)
	missionsCmd.AddCommand(missionsPauseCmd)
	missionsCmd.AddCommand(missionsCancelCmd)
	missionsCmd.AddCommand(missionsRmCmd)
	missionsCmd.AddCommand(missionsStepCmd)
	missionsCmd.AddCommand(missionsGoalCmd)
	missionsCmd.AddCommand(missionsWatchCmd)
}

func runMissionsList(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	if offline {
		cached, err := deps.cache.ListMissions(100)
		if err != nil {
			return fmt.Errorf("reading cache: %w", err)
		}
		if len(cached) == 0 {
			fmt.Println("No cached missions.")
			return nil
		}
		for _, m := range cached {
			printMissionLine(&m)
		}
		return nil
	}

	missions, err := deps.client.ListMissions(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing missions: %w", err)
	}
	if len(missions) == 0 {
		fmt.Println("No missions. Create one with: agimectl missions new")
		return nil
	}
	for i := range missions {
		_ = deps.cache.SaveMission(&missions[i])
		printMissionLine(&missions[i])
	}
	return nil
}

func printMissionLine(m *mission.Mission) {
	goal := m.Goal
	if len(goal) > 60 {
		goal = goal[:57] + "..."
	}
	fmt.Printf("  %-36s  %-10s  %s\n", m.MissionID, m.Status, goal)
}

func runMissionsShow(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	m, err := deps.client.GetMission(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("fetching mission: %w", err)
	}
	_ = deps.cache.SaveMission(m)

	fmt.Printf("Mission %s [%s]\n", m.MissionID, m.Status)
	fmt.Printf("Goal: %s\n", m.Goal)
	if m.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", m.ErrorMessage)
	}
	if m.TotalTokensUsed > 0 {
		fmt.Printf("Tokens: %d", m.TotalTokensUsed)
		if m.TokenBudget > 0 {
			fmt.Printf(" / %d", m.TokenBudget)
		}
		fmt.Println()
	}

	if len(m.Steps) > 0 {
		fmt.Println("\nSteps:")
		for _, step := range m.Steps {
			marker := " "
			if m.CurrentStep != nil && step.Index == *m.CurrentStep {
				marker = ">"
			}
			fmt.Printf(" %s %2d. %-16s %s\n", marker, step.Index, step.Status, step.Title)
		}
	}

	if len(m.GoalTree) > 0 {
		fmt.Println("\nGoals:")
		printGoalTree(m.GoalTree, m.CurrentGoalID)
	}
	if m.FinalSummary != "" {
		fmt.Printf("\n%s\n", m.FinalSummary)
	}
	return nil
}

// printGoalTree renders the adaptive goal tree indented by depth, in
// order.
func printGoalTree(tree []mission.GoalNode, currentID string) {
	for _, node := range tree {
		marker := " "
		if node.GoalID == currentID {
			marker = ">"
		}
		indent := strings.Repeat("  ", node.Depth)
		fmt.Printf(" %s %s%-18s %s\n", marker, indent, node.Status, node.Title)
		if node.PivotReason != "" {
			fmt.Printf("   %s  pivot: %s\n", indent, node.PivotReason)
		}
	}
}

func runMissionsNew(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	agentID := missionAgent
	if agentID == "" {
		agentID = deps.cfg.Chat.DefaultAgent
	}
	if agentID == "" {
		return fmt.Errorf("no agent: pass --agent or set chat.default_agent in the config")
	}

	m, err := deps.client.CreateMission(cmd.Context(), api.CreateMissionRequest{
		AgentID:       agentID,
		Goal:          args[0],
		Context:       missionContext,
		ExecutionMode: missionMode,
	})
	if err != nil {
		return fmt.Errorf("creating mission: %w", err)
	}
	_ = deps.cache.SaveMission(m)
	fmt.Printf("Created mission %s [%s]\n", m.MissionID, m.Status)
	return nil
}

func missionAction(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.close()

		ctx := cmd.Context()
		id := args[0]

		m, err := deps.client.GetMission(ctx, id)
		if err != nil {
			return fmt.Errorf("fetching mission: %w", err)
		}

		switch action {
		case "start":
			if !m.Status.CanStart() {
				return fmt.Errorf("cannot start a %s mission", m.Status)
			}
			err = deps.client.StartMission(ctx, id)
		case "pause":
			if !m.Status.CanPause() {
				return fmt.Errorf("cannot pause a %s mission", m.Status)
			}
			err = deps.client.PauseMission(ctx, id)
		case "cancel":
			if !m.Status.CanCancel() {
				return fmt.Errorf("cannot cancel a %s mission", m.Status)
			}
			err = deps.client.CancelMission(ctx, id)
		case "rm":
			if !m.Status.CanDelete() {
				return fmt.Errorf("cannot delete a %s mission while it runs", m.Status)
			}
			err = deps.client.DeleteMission(ctx, id)
		}
		if err != nil {
			return fmt.Errorf("%s mission: %w", action, err)
		}
		fmt.Printf("OK: %s %s\n", action, id)
		return nil
	}
}

func runMissionsStep(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("step index must be a number: %q", args[1])
	}

	ctx := cmd.Context()
	switch args[2] {
	case "approve":
		err = deps.client.ApproveStep(ctx, args[0], idx)
	case "reject":
		err = deps.client.RejectStep(ctx, args[0], idx)
	case "skip":
		err = deps.client.SkipStep(ctx, args[0], idx)
	default:
		return fmt.Errorf("unknown step action %q", args[2])
	}
	if err != nil {
		return fmt.Errorf("%s step: %w", args[2], err)
	}
	fmt.Printf("OK: step %d %sd\n", idx, args[2])
	return nil
}

func runMissionsGoal(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := cmd.Context()
	req := api.GoalActionRequest{Feedback: goalFeedback}
	switch args[2] {
	case "approve":
		err = deps.client.ApproveGoal(ctx, args[0], args[1], req)
	case "reject":
		err = deps.client.RejectGoal(ctx, args[0], args[1], req)
	case "pivot":
		req.AlternativeApproach = goalFeedback
		err = deps.client.PivotGoal(ctx, args[0], args[1], req)
	default:
		return fmt.Errorf("unknown goal action %q", args[2])
	}
	if err != nil {
		return fmt.Errorf("%s goal: %w", args[2], err)
	}
	fmt.Printf("OK: goal %s %s\n", args[1], args[2])
	return nil
}

// runMissionsWatch follows a mission's stream, printing agent output and
// goal transitions until it reaches a terminal state or Ctrl-C detaches.
func runMissionsWatch(cmd *cobra.Command, args []string) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.close()

	ctx := cmd.Context()
	m, err := deps.client.GetMission(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetching mission: %w", err)
	}
	if m.Status.Terminal() {
		fmt.Printf("Mission already %s.\n", m.Status)
		return nil
	}

	tr := transcript.New()
	tr.EnsureStreamingTail()
	tracker := mission.NewTracker(m)
	printer := ui.NewPrinter(verbose)

	hooks := stream.Hooks{
		OnTranscript: func() { printer.Sync(tr) },
		OnStatus:     printer.Status,
		OnDone:       printer.Done,
		OnGoal: func(upd stream.GoalUpdate) {
			tracker.Apply(upd)
			printer.Status(goalLabel(upd))
		},
	}
	consumer := stream.NewConsumer(args[0], tr, hooks, deps.logger)

	sup := reconcile.New(consumer, missionBackend{deps.client}, missionDial(deps), reconcile.Options{}, deps.logger)
	sup.Status = printer.Status
	sup.Update = func() { printer.Sync(tr) }

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(sigCtx); err != nil && sigCtx.Err() == nil {
		return fmt.Errorf("watching mission: %w", err)
	}

	if final, err := deps.client.GetMission(ctx, args[0]); err == nil {
		_ = deps.cache.SaveMission(final)
		fmt.Printf("\nMission %s [%s]\n", final.MissionID, final.Status)
		if len(final.GoalTree) > 0 {
			printGoalTree(final.GoalTree, final.CurrentGoalID)
		}
	}
	return nil
}

func goalLabel(upd stream.GoalUpdate) string {
	switch upd.Kind {
	case stream.EventGoalStart:
		return "Goal: " + upd.Title
	case stream.EventGoalComplete:
		return "Goal complete"
	case stream.EventPivot:
		return "Pivoting: " + upd.ToApproach
	case stream.EventGoalAbandoned:
		return "Goal abandoned: " + upd.Reason
	}
	return "Goal update"
}

// missionBackend adapts the mission endpoints to the supervisor's
// session-shaped view of authoritative state.
type missionBackend struct {
	client *api.Client
}

func (b missionBackend) GetSession(ctx context.Context, id string) (*api.SessionSnapshot, error) {
	m, err := b.client.GetMission(ctx, id)
	if err != nil {
		return nil, err
	}
	return &api.SessionSnapshot{
		SessionID:    m.MissionID,
		IsProcessing: m.Status == mission.StatusRunning || m.Status == mission.StatusPlanning,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func (b missionBackend) CancelSession(ctx context.Context, id string) error {
	return b.client.CancelMission(ctx, id)
}

func missionDial(deps *deps) reconcile.DialFunc {
	return func(ctx context.Context, id string, cursor uint64) (reconcile.EventSource, error) {
		return deps.client.OpenMissionStream(ctx, id, cursor)
	}
}
