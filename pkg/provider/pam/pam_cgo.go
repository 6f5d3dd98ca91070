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

//go:build cgo

package pam

import (
	gopam "github.com/msteinert/pam/v2"
	"github.com/pkg/errors"
	"github.com/szaffarano/webauth/pkg/relay"
)

type session struct {
	tx    *gopam.Transaction
	flags gopam.Flags
}

// Start opens a transaction for user on service. conv answers every message
// the PAM stack sends.
func (p *Provider) Start(service, user string, conv relay.Responder) (relay.Session, error) {
	handler := gopam.ConversationFunc(func(style gopam.Style, msg string) (string, error) {
		return conv.Respond(toStyle(style), msg)
	})

	var (
		tx  *gopam.Transaction
		err error
	)
	if p.opts.ConfDir != "" {
		tx, err = gopam.StartConfDir(service, user, handler, p.opts.ConfDir)
	} else {
		tx, err = gopam.Start(service, user, handler)
	}
	if err != nil {
		return nil, classify(errors.Wrap(err, "pam_start"))
	}

	return &session{tx: tx, flags: p.flags()}, nil
}

func (p *Provider) flags() gopam.Flags {
	var f gopam.Flags
	if p.opts.Silent {
		f |= gopam.Silent
	}
	if p.opts.DisallowNullAuthtok {
		f |= gopam.DisallowNullAuthtok
	}
	return f
}

func (s *session) Authenticate() error {
	if err := s.tx.Authenticate(s.flags); err != nil {
		return classify(errors.Wrap(err, "pam_authenticate"))
	}
	return nil
}

// ValidateAccount runs pam_acct_mgmt.
func (s *session) ValidateAccount() error {
	if err := s.tx.AcctMgmt(s.flags); err != nil {
		return classify(errors.Wrap(err, "pam_acct_mgmt"))
	}
	return nil
}

func (s *session) End() error {
	return errors.Wrap(s.tx.End(), "pam_end")
}

func toStyle(s gopam.Style) relay.Style {
	switch s {
	case gopam.PromptEchoOff:
		return relay.PromptEchoOff
	case gopam.PromptEchoOn:
		return relay.PromptEchoOn
	case gopam.ErrorMsg:
		return relay.ErrorMsg
	case gopam.TextInfo:
		return relay.TextInfo
	default:
		return relay.StyleUnknown
	}
}

// classify keeps allocation and conversation failures apart, the relay
// decides for the rest. A conversation error that never reached the Go
// handler (a request with zero messages) is only visible as PAM_CONV_ERR.
func classify(err error) error {
	switch {
	case errors.Is(err, gopam.ErrBuf):
		return relay.Wrap(relay.ErrResource, err)
	case errors.Is(err, gopam.ErrConv):
		return relay.Wrap(relay.ErrUnsupportedPrompt, err)
	}
	return err
}
