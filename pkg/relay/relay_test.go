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

package relay

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prompt struct {
	style Style
	msg   string
}

type mockProvider struct {
	password    string
	prompts     []prompt
	startErr    error
	authErr     error
	endErr      error
	acctErr     error
	noAccount   bool
	started     bool
	ended       bool
	service     string
	user        string
	received    []string
	acctChecked bool
}

type mockSession struct {
	p    *mockProvider
	conv Responder
}

// plainSession hides ValidateAccount.
type plainSession struct {
	s *mockSession
}

func (p *mockProvider) Start(service, user string, conv Responder) (Session, error) {
	p.started = true
	p.service = service
	p.user = user
	if p.startErr != nil {
		return nil, p.startErr
	}
	s := &mockSession{p: p, conv: conv}
	if p.noAccount {
		return plainSession{s: s}, nil
	}
	return s, nil
}

func (s *mockSession) Authenticate() error {
	for _, pr := range s.p.prompts {
		resp, err := s.conv.Respond(pr.style, pr.msg)
		if err != nil {
			return errors.New("conversation error")
		}
		s.p.received = append(s.p.received, resp)
	}
	if s.p.authErr != nil {
		return s.p.authErr
	}
	if len(s.p.received) > 0 && s.p.received[0] != s.p.password {
		return errors.New("authentication failure")
	}
	return nil
}

func (s *mockSession) ValidateAccount() error {
	s.p.acctChecked = true
	return s.p.acctErr
}

func (s *mockSession) End() error {
	s.p.ended = true
	return s.p.endErr
}

func (s plainSession) Authenticate() error { return s.s.Authenticate() }

func (s plainSession) End() error { return s.s.End() }

func passwordPrompt() []prompt {
	return []prompt{{PromptEchoOff, "Password: "}}
}

func newTestRelay(p Provider, opts Options) (*Relay, *memory.Handler) {
	handler := memory.New()
	opts.Logger = &log.Logger{Handler: handler, Level: log.DebugLevel}
	return New(p, opts), handler
}

func TestAuthenticate(t *testing.T) {
	t.Run("correct password succeeds", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.Nil(t, err)
		assert.Equal(t, DefaultService, p.service)
		assert.Equal(t, "noeh", p.user)
		assert.Equal(t, []string{"hunter2"}, p.received)
		assert.True(t, p.ended)
	})

	t.Run("custom service name is used", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{Service: "login"})

		assert.Nil(t, r.Authenticate("noeh", strings.NewReader("hunter2\n")))
		assert.Equal(t, "login", p.service)
	})

	t.Run("wrong password fails and is never logged", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, handler := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("letmein\n"))

		assert.True(t, errors.Is(err, ErrAuthFailed))
		assert.True(t, p.ended)
		for _, e := range handler.Entries {
			assert.NotContains(t, e.Message, "letmein")
			for _, v := range e.Fields {
				assert.NotContains(t, fmt.Sprint(v), "letmein")
			}
		}
		assert.NotContains(t, err.Error(), "letmein")
	})

	t.Run("empty input never reaches the provider", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader(""))

		assert.True(t, errors.Is(err, ErrInput))
		assert.False(t, p.started)
	})

	t.Run("empty username is a usage error", func(t *testing.T) {
		p := &mockProvider{}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("", strings.NewReader("hunter2\n"))

		assert.True(t, errors.Is(err, ErrUsage))
		assert.False(t, p.started)
	})

	t.Run("whitespace username is left to the provider", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{})

		assert.Nil(t, r.Authenticate(" ", strings.NewReader("hunter2\n")))
		assert.Equal(t, " ", p.user)
	})

	t.Run("start failure is a provider error without teardown", func(t *testing.T) {
		p := &mockProvider{startErr: errors.New("no such service")}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.True(t, errors.Is(err, ErrProvider))
		assert.False(t, p.ended)
	})

	t.Run("classified start failure keeps its kind", func(t *testing.T) {
		p := &mockProvider{startErr: Wrap(ErrResource, errors.New("buffer"))}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.Equal(t, ErrResource, KindOf(err))
	})

	t.Run("teardown failure wins over success", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt(), endErr: errors.New("pam_end")}
		r, _ := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.Equal(t, ErrTeardown, KindOf(err))
	})

	t.Run("teardown failure wins over authentication failure", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt(), endErr: errors.New("pam_end")}
		r, handler := newTestRelay(p, Options{})

		err := r.Authenticate("noeh", strings.NewReader("wrong\n"))

		assert.Equal(t, ErrTeardown, KindOf(err))
		require.NotEmpty(t, handler.Entries)
		last := handler.Entries[len(handler.Entries)-1]
		assert.Equal(t, log.ErrorLevel, last.Level)
		assert.Equal(t, "Authentication failed", last.Message)
	})

	t.Run("truncation is logged without content", func(t *testing.T) {
		p := &mockProvider{password: "abc", prompts: passwordPrompt()}
		r, handler := newTestRelay(p, Options{MaxLength: 3})

		err := r.Authenticate("noeh", strings.NewReader("abcdef\n"))

		assert.Nil(t, err)
		assert.Equal(t, []string{"abc"}, p.received)
		var warned bool
		for _, e := range handler.Entries {
			if e.Level == log.WarnLevel {
				warned = true
				assert.NotContains(t, e.Message, "abcdef")
			}
		}
		assert.True(t, warned)
	})

	t.Run("oversized password can be rejected", func(t *testing.T) {
		p := &mockProvider{password: "abc", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{MaxLength: 3, RejectOversized: true})

		err := r.Authenticate("noeh", strings.NewReader("abcdef\n"))

		assert.True(t, errors.Is(err, ErrInput))
		assert.False(t, p.started)
	})
}

func TestAuthenticateUnsupportedPrompts(t *testing.T) {
	cases := []struct {
		name    string
		prompts []prompt
	}{
		{"echo on prompt", []prompt{{PromptEchoOn, "login: "}}},
		{"info message", []prompt{{TextInfo, "hello"}}},
		{"error message", []prompt{{ErrorMsg, "oops"}}},
		{"unknown style", []prompt{{StyleUnknown, ""}}},
		{"second prompt", []prompt{{PromptEchoOff, "Password: "}, {PromptEchoOff, "OTP: "}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := &mockProvider{password: "hunter2", prompts: c.prompts}
			r, _ := newTestRelay(p, Options{})

			err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

			assert.True(t, errors.Is(err, ErrUnsupportedPrompt))
			assert.True(t, p.ended)
		})
	}
}

func TestAuthenticateConversationRejectedByProvider(t *testing.T) {
	// zero-message conversation refused before Respond is ever called
	p := &mockProvider{authErr: Wrap(ErrUnsupportedPrompt, errors.New("conversation error"))}
	r, _ := newTestRelay(p, Options{})

	err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

	assert.Equal(t, ErrUnsupportedPrompt, KindOf(err))
	assert.Empty(t, p.received)
	assert.True(t, p.ended)
	assert.Equal(t, "Unsupported operation or configuration", Describe(err))
}

func TestAuthenticateAccountCheck(t *testing.T) {
	t.Run("account check runs after authentication", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{AccountCheck: true})

		assert.Nil(t, r.Authenticate("noeh", strings.NewReader("hunter2\n")))
		assert.True(t, p.acctChecked)
	})

	t.Run("account check is skipped when disabled", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt()}
		r, _ := newTestRelay(p, Options{})

		assert.Nil(t, r.Authenticate("noeh", strings.NewReader("hunter2\n")))
		assert.False(t, p.acctChecked)
	})

	t.Run("rejected account fails authentication", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt(), acctErr: errors.New("expired")}
		r, _ := newTestRelay(p, Options{AccountCheck: true})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.True(t, errors.Is(err, ErrAuthFailed))
		assert.True(t, p.ended)
	})

	t.Run("provider without account support is an error", func(t *testing.T) {
		p := &mockProvider{password: "hunter2", prompts: passwordPrompt(), noAccount: true}
		r, _ := newTestRelay(p, Options{AccountCheck: true})

		err := r.Authenticate("noeh", strings.NewReader("hunter2\n"))

		assert.True(t, errors.Is(err, ErrProvider))
		assert.True(t, p.ended)
	})
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "Failed to read password", Describe(Wrap(ErrInput, errors.New("eof"))))
	assert.Equal(t, "Unsupported operation or configuration", Describe(Wrap(ErrUnsupportedPrompt, nil)))
	assert.Equal(t, "Authentication failed", Describe(Wrap(ErrAuthFailed, errors.New("pam"))))
	assert.Equal(t, "Unexpected error", Describe(errors.New("anything")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%v", &Error{Kind: ErrTeardown, Err: Wrap(ErrAuthFailed, nil)})
	assert.Equal(t, "failed to release authentication session: authentication failed", buf.String())
}
