package cmds

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/minerba/pkg/config"
	"github.com/go-go-golems/minerba/pkg/persistence/runlog"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type RunsCommand struct {
	*cmds.CommandDescription
}

type RunsSettings struct {
	RunlogDB       string `glazed:"runlog-db"`
	SessionID      string `glazed:"session"`
	ConversationID string `glazed:"conversation"`
	Outcome        string `glazed:"outcome"`
	Limit          int    `glazed:"limit"`
}

func NewRunsCommand() (*RunsCommand, error) {
	glazedLayer, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsLayer, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"runs",
		cmds.WithShort("List recorded jobs from the run log database"),
		cmds.WithLong("List the jobs recorded in the SQLite run log, newest first, one row per job."),
		cmds.WithFlags(
			fields.New(
				"runlog-db",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("SQLite run log file (defaults to runlog-db from the config file)"),
			),
			fields.New(
				"session",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only jobs of this session id"),
			),
			fields.New(
				"conversation",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only jobs of this conversation id"),
			),
			fields.New(
				"outcome",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only jobs with this outcome (ok, job_failed, timeout, ...)"),
			),
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(20),
				fields.WithHelp("Maximum number of jobs to list (0 = no limit)"),
			),
		),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &RunsCommand{CommandDescription: desc}, nil
}

func (c *RunsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &RunsSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	path := strings.TrimSpace(s.RunlogDB)
	if path == "" {
		path = strings.TrimSpace(viper.GetString("runlog-db"))
	}
	if path == "" {
		return errors.New("no run log database configured (set --runlog-db)")
	}
	store, err := openRunLog(&config.Settings{RunlogDB: path})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	return addRunRows(ctx, store, runlog.Query{
		SessionID:      strings.TrimSpace(s.SessionID),
		ConversationID: strings.TrimSpace(s.ConversationID),
		Outcome:        strings.TrimSpace(s.Outcome),
		Limit:          s.Limit,
	}, gp)
}

// addRunRows emits one row per stored job record.
func addRunRows(ctx context.Context, store runlog.Store, q runlog.Query, gp middlewares.Processor) error {
	recs, err := store.List(ctx, q)
	if err != nil {
		return errors.Wrap(err, "list runs")
	}
	for _, r := range recs {
		if err := gp.AddRow(ctx, runRow(r)); err != nil {
			return err
		}
	}
	return nil
}

func runRow(r runlog.JobRecord) types.Row {
	elapsed := time.Duration(r.FinishedAtMs-r.StartedAtMs) * time.Millisecond
	return types.NewRow(
		types.MRP("started", time.UnixMilli(r.StartedAtMs).Format(time.DateTime)),
		types.MRP("session_id", r.SessionID),
		types.MRP("conversation_id", r.ConversationID),
		types.MRP("job_id", r.JobID),
		types.MRP("outcome", r.Outcome),
		types.MRP("polls", r.Polls),
		types.MRP("elapsed", elapsed.String()),
		types.MRP("statuses", strings.Join(r.Statuses, ">")),
		types.MRP("message", r.Message),
	)
}

var _ cmds.GlazeCommand = &RunsCommand{}
