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
	"fmt"
	"strings"
)

func msgVerifyFailed(username string) string {
	return fmt.Sprintf("@%s your address could not be verified.", username)
}

func msgAlreadyClaimed(username string, owner string) string {
	return fmt.Sprintf(
		"@%s that address has already been claimed by @%s.",
		username,
		owner,
	)
}

func msgVerifySuccess(username string, merit uint64) string {
	return fmt.Sprintf(
		"@%s you have been successfully verified with a merit of %d! You may now speak in the room.",
		username,
		merit,
	)
}

func msgMeritShortfall(username string, merit uint64, threshold uint64) string {
	return fmt.Sprintf(
		"@%s your address has been verified, but your merit of %d is below the required %d. Hold more tokens, or let the ones you have age, then try again.",
		username,
		merit,
		threshold,
	)
}

func msgOracleFailure(username string) string {
	return fmt.Sprintf(
		"@%s your merit could not be checked right now. Please try again in a few minutes.",
		username,
	)
}

func msgInvalidAddress(username string) string {
	return fmt.Sprintf(
		"@%s that does not look like a valid address.",
		username,
	)
}

func msgNothingToRevoke(username string) string {
	return fmt.Sprintf(
		"@%s there is nothing to revoke for that address.",
		username,
	)
}

func msgRevokeWrongOwner(username string) string {
	return fmt.Sprintf("@%s that address is not claimed by you.", username)
}

func msgRevoked(username string) string {
	return fmt.Sprintf(
		"@%s your claim on that address has been revoked.",
		username,
	)
}

func msgTokenSent(username string, txid string) string {
	return fmt.Sprintf("@%s a token is on its way. txid: %s", username, txid)
}

func msgTokenSendFailed(username string) string {
	return fmt.Sprintf(
		"@%s the token could not be sent right now. Please try again in a few minutes.",
		username,
	)
}

func msgMeritNotFound(displayName string) string {
	return fmt.Sprintf("@%s has not verified an address.", displayName)
}

func msgMeritScore(displayName string, merit uint64) string {
	return fmt.Sprintf("@%s has a merit of %d.", displayName, merit)
}

func msgVerifiedList(usernames []string) string {
	if len(usernames) == 0 {
		return "No users are verified yet."
	}
	var sb strings.Builder
	sb.WriteString("Verified users:")
	for _, username := range usernames {
		sb.WriteString("\n@")
		sb.WriteString(username)
	}
	return sb.String()
}

func msgSoftRevoked(username string, merit uint64, threshold uint64) string {
	return fmt.Sprintf(
		"@%s your merit of %d has dropped below the required %d and your speaking privileges are paused. Run /verify again once your merit recovers.",
		username,
		merit,
		threshold,
	)
}
