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
	"fmt"

	"github.com/pkg/errors"
)

// Style is the kind of message a provider sends through the conversation.
type Style int

// Message styles understood by the providers.
const (
	StyleUnknown Style = iota
	PromptEchoOff
	PromptEchoOn
	ErrorMsg
	TextInfo
)

func (s Style) String() string {
	switch s {
	case PromptEchoOff:
		return "prompt-echo-off"
	case PromptEchoOn:
		return "prompt-echo-on"
	case ErrorMsg:
		return "error-msg"
	case TextInfo:
		return "text-info"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// Responder answers one message of a provider conversation.
type Responder interface {
	Respond(style Style, msg string) (string, error)
}

// Conversation answers a single hidden password prompt with the captured
// secret. Anything else, including a second prompt, is refused and the
// refusal is remembered.
type Conversation struct {
	secret *Secret
	used   bool
	err    error
}

var _ Responder = (*Conversation)(nil)

// NewConversation creates a single-shot conversation around secret.
func NewConversation(secret *Secret) *Conversation {
	return &Conversation{secret: secret}
}

// Respond implements Responder.
func (c *Conversation) Respond(style Style, _ string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	switch {
	case style != PromptEchoOff:
		c.err = Wrap(ErrUnsupportedPrompt, errors.Errorf("refusing %s message", style))
	case c.used:
		c.err = Wrap(ErrUnsupportedPrompt, errors.New("more than one prompt requested"))
	case c.secret == nil:
		c.err = Wrap(ErrResource, errors.New("no password captured"))
	default:
		c.used = true
		return c.secret.Reveal(), nil
	}
	return "", c.err
}

// Answered reports whether the password was handed out.
func (c *Conversation) Answered() bool {
	return c.used
}

// Err returns the first refusal, if any.
func (c *Conversation) Err() error {
	return c.err
}
