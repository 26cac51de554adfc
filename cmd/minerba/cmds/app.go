package cmds

import (
	"context"

	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/orchestrator"
	"github.com/go-go-golems/minerba/pkg/persistence/runlog"
	"github.com/go-go-golems/minerba/pkg/redisstream"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// maxInMemoryRuns bounds the run log when no database file is configured.
const maxInMemoryRuns = 1000

// loadSettings loads the .env file and resolves the settings of cmd.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		envFile = config.DefaultEnvFile
	}
	if err := config.LoadEnvFiles(envFile); err != nil {
		return nil, err
	}
	return config.Load(viper.GetViper(), cmd.Flags())
}

func openRunLog(s *config.Settings) (runlog.Store, error) {
	if s.RunlogDB == "" {
		return runlog.NewInMemoryStore(maxInMemoryRuns), nil
	}
	dsn, err := runlog.SQLiteDSNForFile(s.RunlogDB)
	if err != nil {
		return nil, err
	}
	store, err := runlog.NewSQLiteStore(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open run log %s", s.RunlogDB)
	}
	log.Debug().Str("path", s.RunlogDB).Msg("opened run log")
	return store, nil
}

// App bundles what a chat turn needs: the orchestrator with its event router
// and run log.
type App struct {
	Settings     *config.Settings
	Orchestrator *orchestrator.Orchestrator
	Router       *events.Router
	Runs         runlog.Store
}

func newApp(s *config.Settings) (*App, error) {
	runs, err := openRunLog(s)
	if err != nil {
		return nil, err
	}
	verbose := zerolog.GlobalLevel() <= zerolog.DebugLevel
	router, err := redisstream.BuildRouter(s.Redis, verbose)
	if err != nil {
		_ = runs.Close()
		return nil, errors.Wrap(err, "could not build event router")
	}
	o := orchestrator.New(
		orchestrator.WithPollPolicy(s.PollPolicy()),
		orchestrator.WithPublisher(router),
		orchestrator.WithRunLog(runs),
	)
	return &App{Settings: s, Orchestrator: o, Router: router, Runs: runs}, nil
}

func (a *App) Close() {
	if err := a.Router.Close(); err != nil {
		log.Warn().Err(err).Msg("router close error")
	}
	if err := a.Runs.Close(); err != nil {
		log.Warn().Err(err).Msg("run log close error")
	}
}

// bootstrap validates the settings and the assistant. Errors are always
// *session.InitError.
func bootstrap(ctx context.Context, s *config.Settings) (*session.Session, error) {
	if err := s.Validate(); err != nil {
		return nil, &session.InitError{Reason: "invalid settings", Err: err}
	}
	client, err := assistant.NewOpenAIClient(s.APIKey, assistant.WithBaseURL(s.BaseURL))
	if err != nil {
		return nil, &session.InitError{Reason: "could not create client", Err: err}
	}
	scope, err := s.Scope()
	if err != nil {
		return nil, &session.InitError{Reason: "invalid settings", Err: err}
	}
	return session.Bootstrap(ctx, client, s.AssistantID, scope)
}
