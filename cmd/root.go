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

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/szaffarano/webauth/logger"
	"github.com/szaffarano/webauth/pkg/config"
	"github.com/szaffarano/webauth/pkg/relay"
)

const (
	configFlag  = "config"
	serviceFlag = "service"
	backendFlag = "backend"
	quietFlag   = "quiet"
	verboseFlag = "verbose"
	versionFlag = "version"
)

// errVersionShown ends a run that only printed the version.
var errVersionShown = errors.New("version shown")

type flags struct {
	config  string
	service string
	backend string
	quiet   bool
	verbose bool
	version bool
}

// rootCommand remembers whether help was printed: cobra treats help as a
// successful run, but nothing was authenticated.
type rootCommand struct {
	*cobra.Command
	helpShown bool
}

// Version is the app version
type Version struct {
	Version string `json:",omitempty"`
	Commit  string `json:",omitempty"`
	Date    string `json:",omitempty"`
	BuiltBy string `json:",omitempty"`
}

// providerFactory builds the authentication backend selected by cfg.
type providerFactory func(cfg *config.Config) (relay.Provider, error)

// Execute runs the root command and returns the process exit code.
func Execute(version Version) int {
	return execute(newRootCmd(version, newProvider))
}

// execute exits 0 only when a password was verified. Help and version
// output count as failures so that a username such as "--help" can never
// pass for a successful authentication.
func execute(rootCmd *rootCommand) int {
	if err := rootCmd.Execute(); err != nil {
		report(rootCmd.Command, err)
		return 1
	}
	if rootCmd.helpShown {
		return 1
	}
	return 0
}

func newRootCmd(version Version, factory providerFactory) *rootCommand {
	root := &rootCommand{}
	var flags flags
	var cfg *config.Config

	var buffer bytes.Buffer
	if err := json.NewEncoder(&buffer).Encode(version); err != nil {
		panic("Error building version")
	}

	// rootCmd represents the base command when called without any subcommands
	rootCmd := &cobra.Command{
		Use:           "webauth <username>",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Verifies a user password against PAM",
		Long: `Webauth reads a password from standard input and checks it for the given
user through the system authentication stack. It exits 0 when the password is
accepted and 1 otherwise.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.version {
				fmt.Fprint(cmd.ErrOrStderr(), buffer.String())
				return errVersionShown
			}
			if len(args) != 1 {
				return relay.Wrap(relay.ErrUsage, errors.Errorf("expected exactly one username, got %d arguments", len(args)))
			}
			if args[0] == "" {
				return relay.Wrap(relay.ErrUsage, errors.New("empty username"))
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cfg = loaded
			log.Debugf("==== webauth %s - %s - %s ====", version.Version, version.Commit, version.Date)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := factory(cfg)
			if err != nil {
				return relay.Wrap(relay.ErrProvider, err)
			}

			r := relay.New(provider, relay.Options{
				Service:         cfg.Service,
				MaxLength:       cfg.Password.MaxLength,
				RejectOversized: cfg.Password.RejectOversized,
				AccountCheck:    cfg.AccountCheck,
				Prompt:          cmd.ErrOrStderr(),
				Logger:          logger.Log(),
			})

			return r.Authenticate(args[0], cmd.InOrStdin())
		},
	}

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return relay.Wrap(relay.ErrUsage, err)
	})

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, _ []string) {
		root.helpShown = true
		stderr := cmd.ErrOrStderr()
		printUsage(stderr, cmd.Name(), nil)
		fmt.Fprintf(stderr, "\nFlags:\n%s", cmd.Flags().FlagUsages())
	})

	rootCmd.
		PersistentFlags().
		StringVarP(&flags.config, configFlag, "c", "", fmt.Sprintf("Configuration file, YAML or TOML (default is $%s)", config.PathVariableName))

	rootCmd.
		PersistentFlags().
		StringVarP(&flags.service, serviceFlag, "s", "", "PAM service name (default \"webauth\")")

	rootCmd.
		PersistentFlags().
		StringVarP(&flags.backend, backendFlag, "b", "", "Authentication backend, pam or su (default \"pam\")")

	rootCmd.
		PersistentFlags().
		BoolVarP(&flags.quiet, quietFlag, "q", false, "Turns off verbose output")

	rootCmd.
		PersistentFlags().
		BoolVarP(&flags.verbose, verboseFlag, "v", false, "Generates debugging diagnostics")

	rootCmd.
		PersistentFlags().
		BoolVar(&flags.version, versionFlag, false, "Prints the version on stderr and exits 1")

	root.Command = rootCmd
	return root
}

// loadConfig sets up logging from the flags, reads the configuration and
// sets up logging again with the configured level and format.
func loadConfig(cmd *cobra.Command, flags flags) (*config.Config, error) {
	stderr := cmd.ErrOrStderr()
	if err := logger.Init(stderr, logger.Options{Quiet: flags.quiet, Verbose: flags.verbose}); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.Path(flags.config))
	if err != nil {
		return nil, errors.Wrap(err, "error loading configuration")
	}

	if flags.service != "" {
		cfg.Service = flags.service
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, relay.Wrap(relay.ErrUsage, err)
	}

	if err := logger.Init(stderr, logger.Options{
		Quiet:   flags.quiet,
		Verbose: flags.verbose,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

func report(rootCmd *cobra.Command, err error) {
	stderr := rootCmd.ErrOrStderr()
	if errors.Is(err, errVersionShown) {
		return
	}
	if errors.Is(err, relay.ErrUsage) {
		printUsage(stderr, rootCmd.Name(), err)
		return
	}
	log.WithError(err).Error(relay.Describe(err))
}

func printUsage(w io.Writer, name string, err error) {
	if err != nil {
		fmt.Fprintf(w, "Error: %s\n", err)
	}
	fmt.Fprintf(w, "Usage: %s <username>\n\nPassword is expected on stdin.\n", name)
}
