package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/redisstream"
	"github.com/go-go-golems/minerba/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// watchGroup replaces the chat UI's consumer group so that both see every event.
const watchGroup = "minerba-watch"

type WatchCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*WatchCommand)(nil)

type WatchSettings struct {
	SessionID string `glazed:"session"`
	Count     int    `glazed:"count"`
	Verbose   bool   `glazed:"verbose"`

	Redis redisstream.Settings
}

func NewWatchCommand() (*WatchCommand, error) {
	redisLayer, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, errors.Wrap(err, "build redis layer")
	}

	desc := cmds.NewCommandDescription(
		"watch",
		cmds.WithShort("Follow turn events published over Redis Streams"),
		cmds.WithLong("Print the lifecycle events of chat turns (message posted, run started, status checks, run finished) "+
			"as other minerba processes publish them with --redis-enabled."),
		cmds.WithFlags(
			fields.New("session", fields.TypeString, fields.WithDefault(""),
				fields.WithHelp("Only events of this session id")),
			fields.New("count", fields.TypeInteger, fields.WithDefault(0),
				fields.WithHelp("Stop after this many finished runs (0 = until interrupted)")),
			fields.New("verbose", fields.TypeBool, fields.WithDefault(false),
				fields.WithHelp("Verbose event router logging")),
		),
		cmds.WithSections(redisLayer),
	)

	return &WatchCommand{CommandDescription: desc}, nil
}

func (c *WatchCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := &WatchSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "init default settings")
	}
	if err := parsedLayers.DecodeSectionInto(redisstream.Slug, &s.Redis); err != nil {
		return errors.Wrap(err, "init redis settings")
	}
	if !s.Redis.Enabled {
		return errors.New("turn events are only shared over Redis Streams (set --redis-enabled)")
	}
	if s.Redis.Group == redisstream.DefaultGroup {
		s.Redis.Group = watchGroup
	}

	if err := redisstream.EnsureGroupAtTail(ctx, s.Redis.Addr, events.TopicTurns, s.Redis.Group); err != nil {
		return errors.Wrap(err, "could not create redis consumer group")
	}
	router, err := redisstream.BuildRouter(s.Redis, s.Verbose)
	if err != nil {
		return errors.Wrap(err, "create redis event router")
	}
	defer func() { _ = router.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	router.AddHandler("watch", events.TopicTurns, watchHandler(w, strings.TrimSpace(s.SessionID), s.Count, cancel))

	log.Info().Str("addr", s.Redis.Addr).Str("group", s.Redis.Group).Msg("watching turn events")
	if err := router.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// watchHandler prints one line per event and calls done once count runs have
// finished. A count of 0 never calls done.
func watchHandler(w io.Writer, sessionID string, count int, done func()) func(msg *message.Message) error {
	var (
		mu       sync.Mutex
		finished int
	)
	return func(msg *message.Message) error {
		defer msg.Ack()
		e, err := events.FromMessage(msg)
		if err != nil {
			log.Warn().Err(err).Str("uuid", msg.UUID).Msg("skipping malformed turn event")
			return nil
		}
		if sessionID != "" && e.SessionID != sessionID {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		_, _ = fmt.Fprintf(w, "%s %s %s\n", e.Time.Local().Format(time.TimeOnly), e.SessionID, ui.DescribeEvent(e))
		if e.Type == events.TypeJobFinished {
			finished++
			if count > 0 && finished == count {
				done()
			}
		}
		return nil
	}
}
