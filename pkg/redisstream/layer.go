package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
	"github.com/spf13/pflag"
)

// Slug is the section name the redis fields are parsed under.
const Slug = "redis"

const (
	defaultAddr     = "localhost:6379"
	defaultConsumer = "ui-1"
)

// DefaultGroup is the consumer group of the chat UI.
const DefaultGroup = "chat-ui"

// Settings holds Redis Streams transport configuration for turn events.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled" mapstructure:"redis-enabled" yaml:"redis-enabled"`
	Addr     string `glazed:"redis-addr" mapstructure:"redis-addr" yaml:"redis-addr"`
	Group    string `glazed:"redis-group" mapstructure:"redis-group" yaml:"redis-group"`
	Consumer string `glazed:"redis-consumer" mapstructure:"redis-consumer" yaml:"redis-consumer"`
}

// NewParameterLayer returns a section definition for Redis Streams settings.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		Slug,
		"Redis configuration for Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool, fields.WithDefault(false),
				fields.WithHelp("Enable Redis Streams transport for turn events")),
			fields.New("redis-addr", fields.TypeString, fields.WithDefault(defaultAddr),
				fields.WithHelp("Redis address host:port")),
			fields.New("redis-group", fields.TypeString, fields.WithDefault(DefaultGroup),
				fields.WithHelp("Redis consumer group")),
			fields.New("redis-consumer", fields.TypeString, fields.WithDefault(defaultConsumer),
				fields.WithHelp("Redis consumer name")),
		),
	)
}

// AddFlags registers the redis flags on a plain cobra flag set, for commands
// whose settings are resolved through viper.
func AddFlags(fs *pflag.FlagSet) {
	fs.Bool("redis-enabled", false, "Enable Redis Streams transport for turn events")
	fs.String("redis-addr", defaultAddr, "Redis address host:port")
	fs.String("redis-group", DefaultGroup, "Redis consumer group")
	fs.String("redis-consumer", defaultConsumer, "Redis consumer name")
}
