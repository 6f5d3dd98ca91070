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

// Package relay forwards a username and a password line to an external
// authentication provider and classifies the outcome.
package relay

import (
	"io"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultService is the provider service name sessions are scoped to.
const DefaultService = "webauth"

// Provider opens authentication sessions.
type Provider interface {
	Start(service, user string, conv Responder) (Session, error)
}

// Session is one authentication attempt. End must be called once Start
// succeeded, whatever happens in between.
type Session interface {
	Authenticate() error
	End() error
}

// AccountValidator is implemented by sessions able to check the account
// itself (expiry, access restrictions) once the password is verified.
type AccountValidator interface {
	ValidateAccount() error
}

// Options configures a Relay.
type Options struct {
	Service         string
	MaxLength       int
	RejectOversized bool
	AccountCheck    bool
	// Prompt receives the interactive prompt when reading from a terminal.
	Prompt io.Writer
	Logger log.Interface
}

// Relay runs the read, start, authenticate, end sequence.
type Relay struct {
	provider Provider
	opts     Options
}

// New creates a Relay on top of provider.
func New(provider Provider, opts Options) *Relay {
	if opts.Service == "" {
		opts.Service = DefaultService
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxPasswordLength
	}
	if opts.Logger == nil {
		opts.Logger = log.Log
	}
	return &Relay{provider: provider, opts: opts}
}

// Authenticate verifies user with the password line read from in. A nil
// return means the provider accepted the credential.
func (r *Relay) Authenticate(user string, in io.Reader) (err error) {
	if user == "" {
		return Wrap(ErrUsage, errors.New("empty username"))
	}

	logger := r.opts.Logger.WithFields(log.Fields{
		"attempt": uuid.New().String(),
		"service": r.opts.Service,
		"user":    user,
	})

	secret, truncated, err := ReadPassword(in, ReadOptions{
		MaxLength:       r.opts.MaxLength,
		RejectOversized: r.opts.RejectOversized,
		Prompt:          r.opts.Prompt,
	})
	if err != nil {
		return err
	}
	defer secret.Wipe()
	if truncated {
		logger.Warnf("password truncated to %d bytes", r.opts.MaxLength)
	}

	conv := NewConversation(secret)

	logger.Debug("starting session")
	session, err := r.provider.Start(r.opts.Service, user, conv)
	if err != nil {
		return Wrap(ErrProvider, err)
	}

	defer func() {
		if endErr := session.End(); endErr != nil {
			if err != nil {
				logger.WithError(err).Error(Describe(err))
			}
			err = &Error{Kind: ErrTeardown, Err: endErr}
		}
	}()

	logger.Debug("authenticating")
	if err := session.Authenticate(); err != nil {
		if convErr := conv.Err(); convErr != nil {
			return convErr
		}
		return Wrap(ErrAuthFailed, err)
	}
	if convErr := conv.Err(); convErr != nil {
		return convErr
	}

	if r.opts.AccountCheck {
		validator, ok := session.(AccountValidator)
		if !ok {
			return Wrap(ErrProvider, errors.New("account validation not supported by this provider"))
		}
		logger.Debug("validating account")
		if err := validator.ValidateAccount(); err != nil {
			return Wrap(ErrAuthFailed, errors.Wrap(err, "account rejected"))
		}
	}

	logger.Debug("authenticated")
	return nil
}
