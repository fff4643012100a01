package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/orchid/pkg/orchestrator"
	"github.com/harun/orchid/pkg/planner"
)

var chatMode string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session on the terminal.
Clarification questions and plan reviews are answered inline.

Commands inside the session:
  /mode planner|direct   switch mode for the next turn
  /cancel                cancel the in-flight turn (from another signal)
  /quit                  end the session`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "session mode (planner, direct); defaults to config")
	rootCmd.AddCommand(chatCmd)
}

// terminalIO answers clarification questions and plan reviews on stdin.
type terminalIO struct {
	in  *bufio.Scanner
	out *os.File
}

func (t *terminalIO) readLine() (string, error) {
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("input closed")
	}
	return strings.TrimSpace(t.in.Text()), nil
}

// Ask prints the clarification question and reads one line.
func (t *terminalIO) Ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(t.out, "\n? %s\n> ", question)
	return t.readLine()
}

// AwaitFeedback prints the plan and reads an accept or revision reply.
func (t *terminalIO) AwaitFeedback(ctx context.Context, plan *planner.Plan) (planner.FeedbackEvent, error) {
	if err := ctx.Err(); err != nil {
		return planner.FeedbackEvent{}, err
	}

	fmt.Fprintf(t.out, "\nProposed plan (revision %d):\n", plan.Revision)
	for i, step := range plan.StepDescriptions() {
		fmt.Fprintf(t.out, "  %d. %s\n", i+1, step)
	}
	fmt.Fprint(t.out, "Accept this plan? [y/N or describe changes] > ")

	line, err := t.readLine()
	if err != nil {
		return planner.FeedbackEvent{}, err
	}

	switch strings.ToLower(line) {
	case "y", "yes", "accept":
		return planner.FeedbackEvent{Accept: true}, nil
	case "", "n", "no":
		return planner.FeedbackEvent{Accept: false, Notes: "please revise the plan"}, nil
	default:
		return planner.FeedbackEvent{Accept: false, Notes: line}, nil
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(false)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := rt.orch.CreateSession(ctx, orchestrator.Mode(chatMode))
	if err != nil {
		return err
	}
	defer rt.orch.EndSession(context.Background(), session.ID)

	term := &terminalIO{
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
	}
	turnIO := orchestrator.TurnIO{Asker: term, Feedback: term}

	fmt.Printf("orchid chat session %s (mode: %s)\n", session.ID[:8], session.Mode())
	fmt.Println("Type /quit to exit, /mode planner|direct to switch.")

	for {
		fmt.Print("\nyou> ")
		line, err := term.readLine()
		if err != nil {
			return nil
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := handleChatCommand(session, line); done {
				return nil
			}
			continue
		}

		result, err := rt.orch.RunTurn(ctx, session.ID, line, turnIO)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		printResult(result)
	}
}

func handleChatCommand(session *orchestrator.Session, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/mode":
		if len(fields) != 2 {
			fmt.Println("usage: /mode planner|direct")
			return false
		}
		if err := session.SetMode(orchestrator.Mode(fields[1])); err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("mode set to %s\n", fields[1])
	default:
		fmt.Printf("unknown command: %s\n", fields[0])
	}
	return false
}

func printResult(result *orchestrator.TurnResult) {
	switch result.Outcome {
	case orchestrator.OutcomeCompleted:
		fmt.Printf("\norchid> %s\n", result.Answer)
	case orchestrator.OutcomeIncomplete:
		fmt.Println("\norchid> I ran out of steps before finishing. Here is what I gathered:")
		for _, obs := range result.Observations {
			fmt.Printf("  [%s] %s\n", obs.Agent, obs.Content)
		}
	case orchestrator.OutcomeCancelled:
		fmt.Println("\n(turn cancelled)")
	default:
		if result.Err != nil {
			fmt.Printf("\norchid> something went wrong: %v\n", result.Err)
		} else {
			fmt.Println("\norchid> something went wrong with that turn.")
		}
	}
}
