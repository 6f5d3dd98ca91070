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
	"github.com/pkg/errors"
	"github.com/szaffarano/webauth/pkg/config"
	"github.com/szaffarano/webauth/pkg/provider/pam"
	"github.com/szaffarano/webauth/pkg/provider/su"
	"github.com/szaffarano/webauth/pkg/relay"
)

func newProvider(cfg *config.Config) (relay.Provider, error) {
	switch cfg.Backend {
	case config.BackendPAM:
		return pam.New(pam.Options{
			ConfDir:             cfg.PAM.ConfDir,
			Silent:              cfg.PAM.Silent,
			DisallowNullAuthtok: cfg.PAM.DisallowNullAuthtok,
		}), nil
	case config.BackendSu:
		return su.New(su.Options{
			Path:    cfg.Su.Path,
			Shell:   cfg.Su.Shell,
			Timeout: cfg.Su.TimeoutDuration(),
		}), nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}
