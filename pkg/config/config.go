// Copyright © 2021 Sebastián Zaffarano <sebas@zaffarano.com.ar>.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// PathVariableName points to a configuration file when no flag is given.
	PathVariableName = "WEBAUTH_CONFIG"

	// BackendPAM authenticates through the PAM library.
	BackendPAM = "pam"
	// BackendSu authenticates by driving su(1).
	BackendSu = "su"

	defaultService   = "webauth"
	defaultMaxLength = 383
	defaultSuPath    = "su"
	defaultSuShell   = "/bin/sh"
	defaultSuTimeout = "6s"
)

// Config holds every tunable of a webauth run.
type Config struct {
	Service      string   `yaml:"service" toml:"service"`
	Backend      string   `yaml:"backend" toml:"backend"`
	AccountCheck bool     `yaml:"account_check" toml:"account_check"`
	Password     Password `yaml:"password" toml:"password"`
	PAM          PAM      `yaml:"pam" toml:"pam"`
	Su           Su       `yaml:"su" toml:"su"`
	Log          Log      `yaml:"log" toml:"log"`
}

// Password controls how the password line is captured.
type Password struct {
	MaxLength       int  `yaml:"max_length" toml:"max_length"`
	RejectOversized bool `yaml:"reject_oversized" toml:"reject_oversized"`
}

// PAM configures the PAM backend.
type PAM struct {
	ConfDir             string `yaml:"conf_dir" toml:"conf_dir"`
	Silent              bool   `yaml:"silent" toml:"silent"`
	DisallowNullAuthtok bool   `yaml:"disallow_null_authtok" toml:"disallow_null_authtok"`
}

// Su configures the su backend.
type Su struct {
	Path    string `yaml:"path" toml:"path"`
	Shell   string `yaml:"shell" toml:"shell"`
	Timeout string `yaml:"timeout" toml:"timeout"`

	timeout time.Duration
}

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: defaultService,
		Backend: BackendPAM,
		Password: Password{
			MaxLength: defaultMaxLength,
		},
		Su: Su{
			Path:    defaultSuPath,
			Shell:   defaultSuShell,
			Timeout: defaultSuTimeout,
		},
		Log: Log{
			Level:  "info",
			Format: "cli",
		},
	}
}

// Load reads the file at path on top of the defaults. TOML is used for files
// with a .toml extension, YAML otherwise. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "error opening config file")
		}

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(data, cfg)
		} else {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing config file %q", path)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Path returns the configuration file to use: the flag value if set, else
// the environment variable, else nothing.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(PathVariableName)
}

// Validate checks values and fills derived fields. It must be called again
// after changing the configuration by hand.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service) == "" {
		return errors.New("service name cannot be empty")
	}

	switch c.Backend {
	case BackendPAM, BackendSu:
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	if c.Password.MaxLength <= 0 {
		return errors.Errorf("invalid password max_length: %d", c.Password.MaxLength)
	}

	if c.Su.Path == "" {
		c.Su.Path = defaultSuPath
	}
	if c.Su.Shell == "" {
		c.Su.Shell = defaultSuShell
	}
	if c.Su.Timeout == "" {
		c.Su.Timeout = defaultSuTimeout
	}
	timeout, err := time.ParseDuration(c.Su.Timeout)
	if err != nil {
		return errors.Wrap(err, "invalid su timeout")
	}
	if timeout <= 0 {
		return errors.Errorf("su timeout must be positive: %s", c.Su.Timeout)
	}
	c.Su.timeout = timeout

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(err, "invalid log level %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "":
		c.Log.Format = "cli"
	case "cli", "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.Log.Format)
	}

	return nil
}

// TimeoutDuration is the parsed su timeout. Valid after Validate.
func (s Su) TimeoutDuration() time.Duration {
	return s.timeout
}
