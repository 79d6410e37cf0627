// Package config holds the settings deployhook reads once at startup.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/redbadger/deployhook/constants"
)

// Keys understood by Load
const (
	SecretKey         = "secret"
	TokenKey          = "token"
	SlackKey          = "slack-webhook"
	DebugKey          = "debug"
	PortKey           = "port"
	PathKey           = "path"
	APIURLKey         = "api-url"
	EnvironmentKey    = "environment"
	CommandTimeoutKey = "command-timeout"
	HTTPTimeoutKey    = "http-timeout"
	ReposKey          = "repos"
)

// Defaults applied when a key is not set
const (
	DefaultPort           = 3016
	DefaultPath           = "/"
	DefaultRemote         = "origin"
	DefaultBranch         = "master"
	DefaultEnvironment    = "production"
	DefaultCommandTimeout = 5 * time.Minute
	DefaultHTTPTimeout    = 30 * time.Second
)

// Repository maps a github repository to the local checkout it deploys to
type Repository struct {
	// Repo is the owner/name of the repository on github
	Repo string `mapstructure:"repo"`
	// Folder is the working directory the update commands run in
	Folder      string `mapstructure:"folder"`
	Remote      string `mapstructure:"remote"`
	Branch      string `mapstructure:"branch"`
	Environment string `mapstructure:"environment"`
}

// Config is built once and only read afterwards, so it is safe to share
// between requests.
type Config struct {
	Secret         string
	Token          string
	SlackWebhook   string
	Debug          bool
	Port           uint16
	Path           string
	APIURL         string
	Environment    string
	CommandTimeout time.Duration
	HTTPTimeout    time.Duration

	repos []Repository
}

// SetDefaults registers the default values and binds the keys that are
// read from the environment under their own names.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(PortKey, DefaultPort)
	v.SetDefault(PathKey, DefaultPath)
	v.SetDefault(EnvironmentKey, DefaultEnvironment)
	v.SetDefault(CommandTimeoutKey, DefaultCommandTimeout)
	v.SetDefault(HTTPTimeoutKey, DefaultHTTPTimeout)

	v.BindEnv(SecretKey, constants.SecretEnvVar)
	v.BindEnv(TokenKey, constants.TokenEnvVar)
	v.BindEnv(SlackKey, constants.SlackEnvVar)
	v.BindEnv(DebugKey, constants.DebugEnvVar)
}

// Load builds a Config from v
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Secret:         v.GetString(SecretKey),
		Token:          v.GetString(TokenKey),
		SlackWebhook:   v.GetString(SlackKey),
		Debug:          v.GetBool(DebugKey),
		Port:           uint16(v.GetUint(PortKey)),
		Path:           v.GetString(PathKey),
		APIURL:         v.GetString(APIURLKey),
		Environment:    v.GetString(EnvironmentKey),
		CommandTimeout: v.GetDuration(CommandTimeoutKey),
		HTTPTimeout:    v.GetDuration(HTTPTimeoutKey),
	}

	var repos []Repository
	if err := v.UnmarshalKey(ReposKey, &repos); err != nil {
		return nil, fmt.Errorf("cannot read %s: %v", ReposKey, err)
	}
	if err := c.setRepos(repos); err != nil {
		return nil, err
	}
	return c, nil
}

// New builds a Config directly, mainly for tests and embedding
func New(secret, token string, repos ...Repository) (*Config, error) {
	c := &Config{
		Secret:         secret,
		Token:          token,
		Port:           DefaultPort,
		Path:           DefaultPath,
		Environment:    DefaultEnvironment,
		CommandTimeout: DefaultCommandTimeout,
		HTTPTimeout:    DefaultHTTPTimeout,
	}
	if err := c.setRepos(repos); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setRepos(repos []Repository) error {
	seen := make(map[string]bool, len(repos))
	c.repos = make([]Repository, 0, len(repos))
	for i, r := range repos {
		r.Repo = strings.TrimSpace(r.Repo)
		if r.Repo == "" || !strings.Contains(r.Repo, "/") {
			return fmt.Errorf("repos[%d]: repo must be owner/name, got %q", i, r.Repo)
		}
		if r.Folder == "" {
			return fmt.Errorf("repos[%d]: folder is required for %s", i, r.Repo)
		}
		if seen[r.Repo] {
			return fmt.Errorf("repos[%d]: %s is configured more than once", i, r.Repo)
		}
		seen[r.Repo] = true
		if r.Remote == "" {
			r.Remote = DefaultRemote
		}
		if r.Branch == "" {
			r.Branch = DefaultBranch
		}
		if r.Environment == "" {
			r.Environment = c.Environment
		}
		c.repos = append(c.repos, r)
	}
	return nil
}

// Validate checks the settings the agent cannot run without
func (c *Config) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("webhook secret is not set (%s)", constants.SecretEnvVar)
	}
	if c.Token == "" {
		return fmt.Errorf("github token is not set (%s)", constants.TokenEnvVar)
	}
	if len(c.repos) == 0 {
		return fmt.Errorf("no %s configured", ReposKey)
	}
	return nil
}

// Lookup returns the repository configured for fullName (owner/name)
func (c *Config) Lookup(fullName string) (Repository, bool) {
	for _, r := range c.repos {
		if r.Repo == fullName {
			return r, true
		}
	}
	return Repository{}, false
}

// Repositories returns a copy of the configured repositories
func (c *Config) Repositories() []Repository {
	out := make([]Repository, len(c.repos))
	copy(out, c.repos)
	return out
}
