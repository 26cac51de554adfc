package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/go-go-golems/minerba/pkg/transcript"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	var render bool
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send a single message and print the reply",
		Args:  cobra.MinimumNArgs(1),
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
			sess, err := bootstrap(ctx, s)
			if err != nil {
				return err
			}

			res := transcript.Exchange(ctx, transcript.New(), app.Orchestrator, sess, strings.Join(args, " "))
			out := res.Display()
			if render && res.OK() && isatty.IsTerminal(os.Stdout.Fd()) {
				styled, err := glamour.Render(out, "dark")
				if err != nil {
					log.Debug().Err(err).Msg("could not render markdown")
				} else {
					out = styled
				}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
			return res.Err()
		},
	}
	config.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&render, "render", true, "Render the reply as markdown when writing to a terminal")
	return cmd
}
