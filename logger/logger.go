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

// Package logger configures the process wide apex/log logger. Output always
// goes to the error stream, stdout is left alone.
package logger

import (
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/pkg/errors"
)

// Options selects the handler and the level.
type Options struct {
	// Quiet only lets errors through.
	Quiet bool
	// Verbose enables debug output and wins over Quiet.
	Verbose bool
	// Level is used when neither Quiet nor Verbose is set.
	Level string
	// Format is one of cli, text or json.
	Format string
}

// Init installs a handler writing to w.
func Init(w io.Writer, opts Options) error {
	handler, err := newHandler(w, opts.Format)
	if err != nil {
		return err
	}

	level, err := resolveLevel(opts)
	if err != nil {
		return err
	}

	log.SetHandler(handler)
	log.SetLevel(level)

	return nil
}

// Log returns the global logger instance.
func Log() log.Interface {
	return log.Log
}

func newHandler(w io.Writer, format string) (log.Handler, error) {
	switch format {
	case "", "cli":
		return cli.New(w), nil
	case "text":
		return text.New(w), nil
	case "json":
		return json.New(w), nil
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
}

func resolveLevel(opts Options) (log.Level, error) {
	switch {
	case opts.Verbose:
		return log.DebugLevel, nil
	case opts.Quiet:
		return log.ErrorLevel, nil
	case opts.Level == "":
		return log.InfoLevel, nil
	}

	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return level, errors.Wrapf(err, "invalid log level %q", opts.Level)
	}
	return level, nil
}
