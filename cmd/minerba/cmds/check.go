package cmds

import (
	"fmt"

	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/spf13/cobra"
)

func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the credentials and the assistant id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			sess, err := bootstrap(cmd.Context(), s)
			if err != nil {
				return err
			}
			name := sess.AssistantName
			if name == "" {
				name = "(unnamed)"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: assistant %s %s, conversation scope %s\n", sess.AssistantID, name, sess.Scope)
			return nil
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}
