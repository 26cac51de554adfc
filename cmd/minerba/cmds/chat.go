package cmds

import (
	"context"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/redisstream"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/go-go-golems/minerba/pkg/transcript"
	"github.com/go-go-golems/minerba/pkg/ui"
	"github.com/go-go-golems/minerba/pkg/ui/runtime"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat with the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			app, err := newApp(s)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			sess, initErr := bootstrap(ctx, s)
			if initErr != nil {
				log.Error().Err(initErr).Msg("assistant initialization failed")
			}
			tr := transcript.New()

			if s.NoTUI || !isatty.IsTerminal(os.Stdout.Fd()) {
				return runLineChat(ctx, cmd, app, sess, initErr, tr)
			}
			return runTUIChat(ctx, app, s, sess, initErr, tr)
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}

func runLineChat(
	ctx context.Context,
	cmd *cobra.Command,
	app *App,
	sess *session.Session,
	initErr error,
	tr *transcript.Transcript,
) error {
	backend := ui.NewTurnBackend(app.Orchestrator, sess, tr)
	var p ui.Prompter
	if isatty.IsTerminal(os.Stdin.Fd()) {
		p = ui.NewTerminalPrompter(os.Stdin, cmd.OutOrStdout())
	} else {
		p = ui.NewReaderPrompter(cmd.InOrStdin())
	}
	return ui.RunLineMode(ctx, backend, p, cmd.OutOrStdout(), initErr)
}

func runTUIChat(
	ctx context.Context,
	app *App,
	s *config.Settings,
	sess *session.Session,
	initErr error,
	tr *transcript.Transcript,
) error {
	// the terminal belongs to the UI
	if viper.GetString("log-file") == "" {
		log.Logger = log.Output(io.Discard)
	}

	if s.Redis.Enabled {
		if err := redisstream.EnsureGroupAtTail(ctx, s.Redis.Addr, events.TopicTurns, s.Redis.Group); err != nil {
			return errors.Wrap(err, "could not create redis consumer group")
		}
	}

	eg, groupCtx := errgroup.WithContext(ctx)
	groupCtx, cancel := context.WithCancel(groupCtx)
	defer cancel()

	_, program, err := runtime.NewChatBuilder().
		WithContext(groupCtx).
		WithResponder(app.Orchestrator).
		WithSession(sess, initErr).
		WithTranscript(tr).
		WithRouter(app.Router).
		WithProgramOptions(tea.WithAltScreen(), tea.WithMouseCellMotion()).
		WithModelOptions(
			ui.WithTitle("minerba"),
			ui.WithTokenCounter(ui.NewTokenCounter()),
		).
		BuildProgram()
	if err != nil {
		return err
	}

	eg.Go(func() error { return app.Router.Run(groupCtx) })
	eg.Go(func() error {
		defer cancel()
		select {
		case <-app.Router.Running():
		case <-groupCtx.Done():
			return nil
		}
		_, err := program.Run()
		return err
	})
	return eg.Wait()
}
