// Package config loads the chat settings from flags, the environment, a .env
// file and the viper config file.
package config

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/minerba/pkg/orchestrator"
	"github.com/go-go-golems/minerba/pkg/redisstream"
	"github.com/go-go-golems/minerba/pkg/session"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvAssistantID = "OPENAI_ASSISTANT_ID"
	EnvBaseURL     = "OPENAI_BASE_URL"

	DefaultEnvFile = ".env"
)

type Settings struct {
	APIKey            string        `mapstructure:"api-key" yaml:"api-key"`
	AssistantID       string        `mapstructure:"assistant-id" yaml:"assistant-id"`
	BaseURL           string        `mapstructure:"base-url" yaml:"base-url,omitempty"`
	ConversationScope string        `mapstructure:"conversation-scope" yaml:"conversation-scope"`
	PollInterval      time.Duration `mapstructure:"poll-interval" yaml:"poll-interval"`
	PollMaxAttempts   int           `mapstructure:"poll-max-attempts" yaml:"poll-max-attempts"`
	PollTimeout       time.Duration `mapstructure:"poll-timeout" yaml:"poll-timeout"`
	RunlogDB          string        `mapstructure:"runlog-db" yaml:"runlog-db,omitempty"`
	NoTUI             bool          `mapstructure:"no-tui" yaml:"no-tui"`

	Redis redisstream.Settings `mapstructure:",squash" yaml:",inline"`
}

// AddFlags registers every setting as a flag. Defaults live here so that
// viper picks them up through BindPFlags.
func AddFlags(flags *pflag.FlagSet) {
	def := orchestrator.DefaultPollPolicy()
	flags.String("api-key", "", "OpenAI API key (env "+EnvAPIKey+")")
	flags.String("assistant-id", "", "Assistant id to talk to (env "+EnvAssistantID+")")
	flags.String("base-url", "", "Override the API base URL (env "+EnvBaseURL+")")
	flags.String("conversation-scope", string(session.ScopePersistent), "persistent: one thread per session; per-turn: a new thread for every message")
	flags.Duration("poll-interval", def.Interval, "Delay between run status checks")
	flags.Int("poll-max-attempts", def.MaxAttempts, "Give up after this many status checks (0 = no limit)")
	flags.Duration("poll-timeout", def.Timeout, "Give up waiting for a run after this long (0 = no limit)")
	flags.String("runlog-db", "", "SQLite file recording job diagnostics (empty = in-memory)")
	flags.Bool("no-tui", false, "Use the line-mode prompt instead of the terminal UI")
	redisstream.AddFlags(flags)
}

// LoadEnvFiles loads .env files into the process environment. Variables that
// are already set win. Missing files are skipped.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("file", f).Msg("no env file")
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "could not load env file %s", f)
		}
		log.Debug().Str("file", f).Msg("loaded env file")
	}
	return nil
}

// Load reads the settings from v. Flags (if any) take precedence over
// the OPENAI_* environment variables, which take precedence over the config file.
func Load(v *viper.Viper, flags *pflag.FlagSet) (*Settings, error) {
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "could not bind flags")
		}
	}
	for key, env := range map[string]string{
		"api-key":      EnvAPIKey,
		"assistant-id": EnvAssistantID,
		"base-url":     EnvBaseURL,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "could not bind %s", env)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.AssistantID = strings.TrimSpace(s.AssistantID)
	return s, nil
}

// Validate reports configuration problems before any network call is made.
func (s *Settings) Validate() error {
	var missing []string
	if s.APIKey == "" {
		missing = append(missing, "api-key ("+EnvAPIKey+")")
	}
	if s.AssistantID == "" {
		missing = append(missing, "assistant-id ("+EnvAssistantID+")")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if _, err := s.Scope(); err != nil {
		return err
	}
	if s.PollInterval <= 0 {
		return errors.Errorf("poll-interval must be positive, got %s", s.PollInterval)
	}
	if s.PollMaxAttempts < 0 {
		return errors.Errorf("poll-max-attempts must not be negative, got %d", s.PollMaxAttempts)
	}
	if s.PollTimeout < 0 {
		return errors.Errorf("poll-timeout must not be negative, got %s", s.PollTimeout)
	}
	return nil
}

func (s *Settings) Scope() (session.ConversationScope, error) {
	return session.ParseScope(s.ConversationScope)
}

func (s *Settings) PollPolicy() orchestrator.PollPolicy {
	return orchestrator.PollPolicy{
		Interval:    s.PollInterval,
		MaxAttempts: s.PollMaxAttempts,
		Timeout:     s.PollTimeout,
	}
}

// Masked returns a copy safe to print.
func (s Settings) Masked() Settings {
	s.APIKey = MaskKey(s.APIKey)
	return s
}

func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + "..." + key[len(key)-4:]
}

// YAML renders the settings with the api key masked.
func (s *Settings) YAML() ([]byte, error) {
	b, err := yaml.Marshal(s.Masked())
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal settings")
	}
	return b, nil
}

// WriteEnvFile stores the credentials in a .env file, keeping the other
// variables it already contains.
func WriteEnvFile(path string, apiKey string, assistantID string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return errors.Wrapf(err, "could not read %s", path)
		}
		env = existing
	}
	if apiKey != "" {
		env[EnvAPIKey] = apiKey
	}
	if assistantID != "" {
		env[EnvAssistantID] = assistantID
	}
	if err := godotenv.Write(env, path); err != nil {
		return errors.Wrapf(err, "could not write %s", path)
	}
	return os.Chmod(path, 0o600)
}
