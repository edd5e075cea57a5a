// Copyright 2025 Buildarr Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dummy

import (
	"context"
	"fmt"

	"github.com/buildarr/buildarr/internal/httpapi"
)

// secrets holds the resolved credentials and the authenticated API client
// for one instance. Cached in memory for a single run only.
type secrets struct {
	hostURL string
	apiKey  string
	client  *httpapi.Client
}

func newSecrets(hostURL, apiKey string) *secrets {
	return &secrets{
		hostURL: hostURL,
		apiKey:  apiKey,
		client:  httpapi.New(hostURL, httpapi.WithAPIKey(apiKey)),
	}
}

// Test implements plugin.Secrets with an authenticated settings read. This
// is where a bad API key or unreachable host surfaces.
func (s *secrets) Test(ctx context.Context) error {
	if err := s.client.Get(ctx, "/api/v1/settings", nil); err != nil {
		return fmt.Errorf("unable to reach %s: %w", s.hostURL, err)
	}
	return nil
}
