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

// Package su authenticates by running su(1) behind a PTY and answering its
// password prompt. It is meant for hosts where the binary cannot link
// against libpam; su still goes through the host PAM stack.
package su

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/pkg/errors"
	"github.com/szaffarano/webauth/pkg/relay"
)

const (
	defaultPath    = "su"
	defaultShell   = "/bin/sh"
	defaultTimeout = 6 * time.Second
)

var (
	// ErrNoPrompt is returned when su finished without asking for a
	// password, which happens when it runs as root.
	ErrNoPrompt = errors.New("su did not prompt for a password")
	// ErrTimeout is returned when su did not finish in time.
	ErrTimeout = errors.New("su timed out")
)

// Options configures the su invocation.
type Options struct {
	Path    string
	Shell   string
	Timeout time.Duration
}

// Provider runs one su process per session.
type Provider struct {
	opts Options
}

var _ relay.Provider = (*Provider)(nil)

// New creates a su provider, zero options take their defaults.
func New(opts Options) *Provider {
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.Shell == "" {
		opts.Shell = defaultShell
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Provider{opts: opts}
}

type session struct {
	opts Options
	user string
	conv relay.Responder

	mu  sync.Mutex
	pty *os.File
}

// Start prepares a session. su uses its own PAM service, service is only
// checked for being set.
func (p *Provider) Start(service, user string, conv relay.Responder) (relay.Session, error) {
	if service == "" {
		return nil, errors.New("empty service name")
	}
	if user == "" || strings.HasPrefix(user, "-") {
		return nil, relay.Wrap(relay.ErrUsage, errors.Errorf("invalid username %q", user))
	}
	return &session{opts: p.opts, user: user, conv: conv}, nil
}

func (s *session) Authenticate() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.opts.Path, "-s", s.opts.Shell, "-c", "true", s.user)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	f, err := pty.Start(cmd)
	if err != nil {
		return relay.Wrap(relay.ErrProvider, errors.Wrap(err, "start su"))
	}
	s.mu.Lock()
	s.pty = f
	s.mu.Unlock()

	var (
		prompted bool
		convErr  error
	)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		var out bytes.Buffer
		buf := make([]byte, 4096)
		for {
			n, rerr := f.Read(buf)
			if n > 0 && !prompted {
				out.Write(buf[:n])
				if strings.Contains(strings.ToLower(out.String()), "password") {
					prompted = true
					resp, err := s.conv.Respond(relay.PromptEchoOff, strings.TrimSpace(out.String()))
					if err != nil {
						convErr = err
						cancel()
						return
					}
					_, _ = io.WriteString(f, resp+"\n")
				}
			}
			if rerr != nil {
				return
			}
		}
	}()

	werr := cmd.Wait()
	<-readerDone

	switch {
	case convErr != nil:
		return convErr
	case ctx.Err() == context.DeadlineExceeded:
		return relay.Wrap(relay.ErrProvider, ErrTimeout)
	case !prompted:
		return relay.Wrap(relay.ErrAuthFailed, ErrNoPrompt)
	case werr != nil:
		return relay.Wrap(relay.ErrAuthFailed, errors.Wrap(werr, "su"))
	}
	return nil
}

// End releases the PTY. Calling it more than once is harmless.
func (s *session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pty == nil {
		return nil
	}
	err := s.pty.Close()
	s.pty = nil
	return errors.Wrap(err, "close pty")
}
