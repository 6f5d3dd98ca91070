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
	"github.com/pkg/errors"
)

// Error kinds. Every error returned by Relay.Authenticate matches exactly one
// of them with errors.Is.
var (
	ErrUsage             = errors.New("usage error")
	ErrInput             = errors.New("failed to read password")
	ErrResource          = errors.New("out of resources while answering the provider")
	ErrUnsupportedPrompt = errors.New("unsupported operation or configuration")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrTeardown          = errors.New("failed to release authentication session")
	ErrProvider          = errors.New("authentication provider error")
)

// ErrTeardown comes first: a teardown failure wins over whatever it wraps.
var kinds = []error{
	ErrTeardown,
	ErrUsage,
	ErrInput,
	ErrResource,
	ErrUnsupportedPrompt,
	ErrAuthFailed,
	ErrProvider,
}

// Error attaches one of the error kinds to the underlying cause. It unwraps to
// both, so provider specific errors stay matchable.
type Error struct {
	Kind error
	Err  error
}

// Error makes Error an error.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err as kind. An err that is already classified is returned
// unchanged.
func Wrap(kind, err error) error {
	if err != nil && KindOf(err) != nil {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind err belongs to, or nil when it is not classified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Describe returns the diagnostic line printed for err.
func Describe(err error) string {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return ""
		}
		return "Unexpected error"
	case ErrUsage:
		return "Invalid invocation"
	case ErrInput:
		return "Failed to read password"
	case ErrResource:
		return "Out of memory while answering the authentication provider"
	case ErrUnsupportedPrompt:
		return "Unsupported operation or configuration"
	case ErrTeardown:
		return "Failed to release authentication resources"
	case ErrProvider:
		return "Authentication provider unavailable"
	default:
		return "Authentication failed"
	}
}
