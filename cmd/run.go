package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/manimchat/manimchat/internal/backend"
	"github.com/manimchat/manimchat/internal/conversation"
	"github.com/manimchat/manimchat/internal/tui"
)

func newRunCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a single prompt without history",
		Long: "run sends one prompt to the generation backend using the legacy\n" +
			"single-shot request shape and prints the result. Nothing is stored.",
		Example: `  manimchat run -P "animate a bouncing ball"
  manimchat run --prompt "explain the chain rule"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(prompt)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to send")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce sends prompt as a legacy {"prompt": ...} request and prints the reply.
func runOnce(prompt string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	if _, err := conversation.Validate(prompt, cfg.Limits.MaxMessageLength); err != nil {
		return err
	}

	log, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(log),
	)
	ui := tui.NewPlainIO(tui.PlainOptions{VideoBase: client.BaseURL()})

	reply, err := client.GenerateOnce(ctx, prompt)
	if err != nil {
		log.WithError(err).Debug("single-shot request failed")
		return errors.New(backend.UserMessage(err))
	}

	turn := conversation.Turn{Role: conversation.RoleAssistant, Status: conversation.StatusResolved}
	switch reply.Type {
	case backend.ReplyAnimation:
		r := conversation.AnimationResult(reply.VideoURL, reply.SceneName)
		turn.Result = &r
	default:
		r := conversation.TextResult(reply.Content)
		turn.Result = &r
	}
	ui.TurnSettled(turn)
	return nil
}
