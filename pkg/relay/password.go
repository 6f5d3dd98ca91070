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
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// DefaultMaxPasswordLength is the number of password bytes captured from the
// input line, terminator excluded.
const DefaultMaxPasswordLength = 383

const redacted = "[REDACTED]"

// Secret holds a password for the duration of one authentication attempt.
// Its printed forms never reveal the content.
type Secret struct {
	b []byte
}

// NewSecret copies p into a new Secret.
func NewSecret(p []byte) *Secret {
	b := make([]byte, len(p))
	copy(b, p)
	return &Secret{b: b}
}

// Reveal returns the password text.
func (s *Secret) Reveal() string {
	return string(s.b)
}

// Len is the password length in bytes.
func (s *Secret) Len() int {
	return len(s.b)
}

// Wipe zeroes the captured bytes.
func (s *Secret) Wipe() {
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = s.b[:0]
}

func (s *Secret) String() string {
	return redacted
}

// GoString keeps %#v from dumping the bytes.
func (s *Secret) GoString() string {
	return redacted
}

// Format keeps every verb from dumping the bytes.
func (s *Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// ReadOptions controls how the password line is captured.
type ReadOptions struct {
	// MaxLength is the capture boundary in bytes. Zero means
	// DefaultMaxPasswordLength.
	MaxLength int
	// RejectOversized turns an over-long line into an input error instead of
	// truncating it.
	RejectOversized bool
	// Prompt receives the "Password: " prompt when the input is a terminal.
	Prompt io.Writer
}

// ReadPassword reads one line from in and returns it without the newline.
// The second return value reports whether the line was cut at the capture
// boundary. Immediate end of input is an input error, an empty line is not.
func ReadPassword(in io.Reader, opts ReadOptions) (*Secret, bool, error) {
	limit := opts.MaxLength
	if limit <= 0 {
		limit = DefaultMaxPasswordLength
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return readTerminal(f, limit, opts)
	}

	br := bufio.NewReader(in)
	buf := make([]byte, 0, limit)
	read := false
	for len(buf) < limit {
		c, err := br.ReadByte()
		if err == io.EOF {
			if !read {
				return nil, false, Wrap(ErrInput, errors.New("end of input"))
			}
			return fromBuffer(buf), false, nil
		}
		if err != nil {
			wipe(buf)
			return nil, false, Wrap(ErrInput, err)
		}
		read = true
		if c == '\n' {
			return fromBuffer(buf), false, nil
		}
		buf = append(buf, c)
	}

	// the boundary was reached, a newline or end of input right after it
	// means nothing was lost
	next, err := br.Peek(1)
	if err == io.EOF || (err == nil && next[0] == '\n') {
		return fromBuffer(buf), false, nil
	}
	if opts.RejectOversized {
		wipe(buf)
		return nil, false, Wrap(ErrInput, errors.Errorf("password longer than %d bytes", limit))
	}
	return fromBuffer(buf), true, nil
}

func readTerminal(f *os.File, limit int, opts ReadOptions) (*Secret, bool, error) {
	if opts.Prompt != nil {
		fmt.Fprint(opts.Prompt, "Password: ")
		defer fmt.Fprintln(opts.Prompt)
	}
	pw, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return nil, false, Wrap(ErrInput, err)
	}
	defer wipe(pw)

	if len(pw) <= limit {
		return NewSecret(pw), false, nil
	}
	if opts.RejectOversized {
		return nil, false, Wrap(ErrInput, errors.Errorf("password longer than %d bytes", limit))
	}
	return NewSecret(pw[:limit]), true, nil
}

func fromBuffer(buf []byte) *Secret {
	s := NewSecret(buf)
	wipe(buf)
	return s
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
