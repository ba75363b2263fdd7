// Package config loads nbrpc settings from a config file, NBRPC_* environment
// variables and bound command line flags, in increasing order of precedence.
package config

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	stdiorpc "github.com/xizhibei/go-stdio-rpc"
	"github.com/xizhibei/go-stdio-rpc/overview"
	"github.com/xizhibei/go-stdio-rpc/sitepatch"
	"github.com/xizhibei/go-stdio-rpc/stdio"
)

const EnvPrefix = "NBRPC"

// App is the complete nbrpc configuration.
type App struct {
	Session stdiorpc.Config `mapstructure:"session"`

	// Env holds KEY=VALUE overrides for the peer environment. A list keeps
	// key case intact, which viper would lower in a map.
	Env []string `mapstructure:"env"`

	// ToolArguments is a JSON object passed to the tool. It is kept as a
	// string because viper folds the case of map keys.
	ToolArguments string `mapstructure:"tool_arguments"`

	Overview overview.Plan `mapstructure:"overview"`
	Site     Site          `mapstructure:"site"`

	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Metrics  bool   `mapstructure:"metrics"`
}

// Site configures the page rewriting commands.
type Site struct {
	Files    []string         `mapstructure:"files"`
	Template string           `mapstructure:"template"`
	Workers  int              `mapstructure:"workers"`
	Rules    []sitepatch.Rule `mapstructure:"rules"`

	Base     string         `mapstructure:"base"`
	Output   string         `mapstructure:"output"`
	BodyFile string         `mapstructure:"body_file"`
	Page     sitepatch.Page `mapstructure:"page"`
}

// New returns a viper instance with defaults and environment lookup configured.
func New() *viper.Viper {
	v := viper.New()

	session := stdiorpc.DefaultConfig()
	v.SetDefault("session.executable_path", session.ExecutablePath)
	v.SetDefault("session.args", []string{})
	v.SetDefault("session.tool_name", session.ToolName)
	v.SetDefault("session.client_name", session.ClientName)
	v.SetDefault("session.client_version", session.ClientVersion)
	v.SetDefault("session.protocol_version", session.ProtocolVersion)
	v.SetDefault("session.read_timeout", session.ReadTimeout)
	v.SetDefault("session.limiter_interval", session.LimiterInterval)
	v.SetDefault("session.limiter_burst", session.LimiterBurst)
	v.SetDefault("session.transcript_path", "")
	v.SetDefault("env", []string{})
	v.SetDefault("tool_arguments", "")

	plan := overview.DefaultPlan()
	v.SetDefault("overview.title", plan.Title)
	v.SetDefault("overview.source_title", plan.SourceTitle)
	v.SetDefault("overview.source_text", plan.SourceText)
	v.SetDefault("overview.tools.list_notebooks", plan.Tools.ListNotebooks)
	v.SetDefault("overview.tools.create_notebook", plan.Tools.CreateNotebook)
	v.SetDefault("overview.tools.get_notebook", plan.Tools.GetNotebook)
	v.SetDefault("overview.tools.add_text", plan.Tools.AddText)
	v.SetDefault("overview.tools.create_audio", plan.Tools.CreateAudio)

	v.SetDefault("site.files", []string{})
	v.SetDefault("site.template", "")
	v.SetDefault("site.workers", 0)
	v.SetDefault("site.base", "index.html")
	v.SetDefault("site.output", "")
	v.SetDefault("site.body_file", "")
	v.SetDefault("site.page.title", "")
	v.SetDefault("site.page.description", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("metrics", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads path, when set, into v and decodes the result.
func Load(v *viper.Viper, path string) (*App, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	if v.IsSet("session.tool_arguments") {
		return nil, errors.New("session.tool_arguments is not supported, set tool_arguments to a JSON object string")
	}

	var app App
	if err := v.Unmarshal(&app); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	app.Session.ToolArguments = map[string]any{}
	if app.ToolArguments != "" {
		if err := json.Unmarshal([]byte(app.ToolArguments), &app.Session.ToolArguments); err != nil {
			return nil, errors.Wrap(err, "decode tool_arguments")
		}
	}

	env, err := stdio.ParseEnv(app.Env)
	if err != nil {
		return nil, err
	}
	app.Session.Env = env

	return &app, nil
}
