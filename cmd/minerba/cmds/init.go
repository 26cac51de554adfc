package cmds

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func notEmpty(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.Errorf("%s is required", what)
		}
		return nil
	}
}

func NewInitCommand() *cobra.Command {
	var apiKey, assistantID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Ask for the API key and assistant id and store them in the env file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil || envFile == "" {
				envFile = config.DefaultEnvFile
			}
			if err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}
			if apiKey == "" {
				apiKey = os.Getenv(config.EnvAPIKey)
			}
			if assistantID == "" {
				assistantID = os.Getenv(config.EnvAssistantID)
			}

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("OpenAI API key").
						EchoMode(huh.EchoModePassword).
						Validate(notEmpty("api key")).
						Value(&apiKey),
					huh.NewInput().
						Title("Assistant id").
						Placeholder("asst_...").
						Validate(notEmpty("assistant id")).
						Value(&assistantID),
				),
			).WithTheme(huh.ThemeCharm())
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return errors.Wrap(err, "could not read credentials")
			}

			if err := config.WriteEnvFile(envFile, strings.TrimSpace(apiKey), strings.TrimSpace(assistantID)); err != nil {
				return err
			}
			log.Info().Str("file", envFile).Msg("wrote credentials")
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s to %s\n", config.EnvAPIKey, config.EnvAssistantID, envFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Prefill the API key")
	cmd.Flags().StringVar(&assistantID, "assistant-id", "", "Prefill the assistant id")
	return cmd
}
