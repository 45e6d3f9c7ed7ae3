// Copyright 2025 Blink Labs Software
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

package gatekeeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/blinklabs-io/doorman/database"
)

// checkClaim reports whether addr is already claimed by a different identity
// than requestingID. A claim held by the requesting identity itself is not a
// conflict; re-verifying your own address is idempotent. Claims are checked
// regardless of verified state so a soft-revoked record keeps its claim.
func (e *Engine) checkClaim(
	ctx context.Context,
	addr string,
	requestingID int64,
) (string, bool, error) {
	owner, err := e.store.GetParticipantByBchAddr(ctx, addr)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up address claim: %w", err)
	}
	if owner.TelegramID == requestingID {
		return "", false, nil
	}
	return owner.Username, true, nil
}
