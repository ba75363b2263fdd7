package stdiorpc

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

var validate = validator.New()

// Config describes one session cycle.
type Config struct {
	ExecutablePath string            `mapstructure:"executable_path" validate:"required"`
	Args           []string          `mapstructure:"args"`
	Env            map[string]string `mapstructure:"-"`

	ToolName string `mapstructure:"tool_name" validate:"required"`

	// ToolArguments are sent as given. Argument names are case sensitive.
	ToolArguments map[string]any `mapstructure:"-"`

	ClientName      string `mapstructure:"client_name" validate:"required"`
	ClientVersion   string `mapstructure:"client_version" validate:"required"`
	ProtocolVersion string `mapstructure:"protocol_version" validate:"required"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	LimiterInterval time.Duration `mapstructure:"limiter_interval" validate:"gt=0"`
	LimiterBurst    int           `mapstructure:"limiter_burst" validate:"gt=0"`

	TranscriptPath string `mapstructure:"transcript_path"`
}

// DefaultConfig returns a Config that lists notebooks with the default client identity.
func DefaultConfig() Config {
	return Config{
		ExecutablePath:  "notebooklm-mcp",
		ToolName:        "notebook_list",
		ToolArguments:   map[string]any{},
		ClientName:      DefaultClientName,
		ClientVersion:   DefaultClientVersion,
		ProtocolVersion: jsonrpc.ProtocolVersion,
		ReadTimeout:     60 * time.Second,
		LimiterInterval: time.Second,
		LimiterBurst:    5,
	}
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid session config")
	}
	return nil
}

// Options converts the session related fields into options.
func (c *Config) Options() []Option {
	return []Option{
		WithReadTimeout(c.ReadTimeout),
		WithLimiter(c.LimiterInterval, c.LimiterBurst),
		WithProtocolVersion(c.ProtocolVersion),
		WithClientInfo(c.ClientName, c.ClientVersion),
	}
}
