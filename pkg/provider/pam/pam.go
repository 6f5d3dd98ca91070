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

// Package pam authenticates through the system PAM library.
package pam

import (
	"github.com/pkg/errors"
	"github.com/szaffarano/webauth/pkg/relay"
)

// ErrUnsupported is returned when the binary was built without PAM support.
var ErrUnsupported = errors.New("PAM support requires a cgo enabled build")

// Options tunes the PAM transaction.
type Options struct {
	// ConfDir loads service files from this directory instead of the
	// system one.
	ConfDir string
	// Silent asks modules not to emit informational messages.
	Silent bool
	// DisallowNullAuthtok fails users with an empty password.
	DisallowNullAuthtok bool
}

// Provider opens PAM transactions.
type Provider struct {
	opts Options
}

var _ relay.Provider = (*Provider)(nil)

// New creates a PAM provider.
func New(opts Options) *Provider {
	return &Provider{opts: opts}
}
