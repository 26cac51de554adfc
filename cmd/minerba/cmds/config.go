package cmds

import (
	"fmt"

	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective settings (api key masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			b, err := s.YAML()
			if err != nil {
				return err
			}
			if f := viper.ConfigFileUsed(); f != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# config file: %s\n", f)
			}
			if _, err := cmd.OutOrStdout().Write(b); err != nil {
				return errors.Wrap(err, "could not write settings")
			}
			if err := s.Validate(); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}
			return nil
		},
	}
	config.AddFlags(cmd.Flags())
	return cmd
}
