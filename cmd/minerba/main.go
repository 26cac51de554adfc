package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/go-go-golems/minerba/cmd/minerba/cmds"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "minerba",
	Short: "Chat with a hosted OpenAI assistant from the terminal",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
	},
	SilenceUsage: true,
}

func main() {
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	err := clay.InitViper("minerba", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	cobra.CheckErr(err)

	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "dotenv file to load credentials from")
	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewAskCommand(),
		cmds.NewCheckCommand(),
		cmds.NewConfigCommand(),
		cmds.NewInitCommand(),
	)

	runsCmd, err := cmds.NewRunsCommand()
	cobra.CheckErr(err)
	cobraRunsCmd, err := cli.BuildCobraCommand(runsCmd)
	cobra.CheckErr(err)
	watchCmd, err := cmds.NewWatchCommand()
	cobra.CheckErr(err)
	cobraWatchCmd, err := cli.BuildCobraCommand(watchCmd)
	cobra.CheckErr(err)
	rootCmd.AddCommand(cobraRunsCmd, cobraWatchCmd)

	err = rootCmd.Execute()
	cobra.CheckErr(err)
}
