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

package gatekeeper_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/blinklabs-io/doorman/bch"
	"github.com/blinklabs-io/doorman/database"
	"github.com/blinklabs-io/doorman/gatekeeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testThreshold = 30000

// fakeVerifier accepts any address starting with "bitcoincash:" and treats
// "good" as the only valid signature
type fakeVerifier struct{}

func (f *fakeVerifier) NormalizeAddress(addr string) (string, error) {
	if !strings.HasPrefix(addr, "bitcoincash:") {
		return "", fmt.Errorf("%w: unparseable address", bch.ErrInvalidInput)
	}
	return addr, nil
}

func (f *fakeVerifier) SlpAddress(addr string) (string, error) {
	return "simpleledger:" + strings.TrimPrefix(addr, "bitcoincash:"), nil
}

func (f *fakeVerifier) VerifyMessage(
	addr string,
	signature string,
	message string,
) (bool, error) {
	switch signature {
	case "good":
		return true, nil
	case "malformed":
		return false, fmt.Errorf("%w: bad signature", bch.ErrInvalidInput)
	default:
		return false, nil
	}
}

type fakeOracle struct {
	sync.Mutex
	scores map[string]uint64
	errs   map[string]error
	calls  int
}

func (f *fakeOracle) Score(ctx context.Context, addr string) (uint64, error) {
	f.Lock()
	defer f.Unlock()
	f.calls++
	if err := f.errs[addr]; err != nil {
		return 0, err
	}
	return f.scores[addr], nil
}

func (f *fakeOracle) setScore(addr string, score uint64) {
	f.Lock()
	defer f.Unlock()
	f.scores[addr] = score
}

type fakeWallet struct {
	txid string
	err  error
}

func (f *fakeWallet) SendToken(
	ctx context.Context,
	addr string,
) (string, error) {
	return f.txid, f.err
}

func testEngine(
	t *testing.T,
) (*gatekeeper.Engine, *database.Database, *fakeOracle, *fakeWallet) {
	t.Helper()
	store, err := database.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	oracle := &fakeOracle{
		scores: make(map[string]uint64),
		errs:   make(map[string]error),
	}
	wallet := &fakeWallet{txid: "cafe0123"}
	engine, err := gatekeeper.New(gatekeeper.Config{
		Store:           store,
		Verifier:        &fakeVerifier{},
		Oracle:          oracle,
		Wallet:          wallet,
		MeritThreshold:  testThreshold,
		ChallengePhrase: "verify",
	})
	require.NoError(t, err)
	return engine, store, oracle, wallet
}

func TestVerifyGrantsAboveThreshold(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 42, Username: "satoshi"}
	reply, err := engine.Verify(
		context.Background(),
		identity,
		"bitcoincash:qaaa",
		"good",
	)
	require.NoError(t, err)
	assert.Contains(t, reply, "successfully verified")
	assert.Contains(t, reply, "@satoshi")
	participant, err := store.GetParticipantByTelegramID(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, participant.Verified)
	assert.Equal(t, uint64(35000), participant.Merit)
	assert.Equal(t, "bitcoincash:qaaa", participant.BchAddr)
	assert.Equal(t, "simpleledger:qaaa", participant.SlpAddr)
	require.NotNil(t, participant.LastVerified)
}

func TestVerifyGrantsAtExactThreshold(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", testThreshold)
	identity := gatekeeper.Identity{TelegramID: 43, Username: "hal"}
	reply, err := engine.Verify(
		context.Background(),
		identity,
		"bitcoincash:qaaa",
		"good",
	)
	require.NoError(t, err)
	assert.Contains(t, reply, "successfully verified")
	participant, err := store.GetParticipantByTelegramID(context.Background(), 43)
	require.NoError(t, err)
	assert.True(t, participant.Verified)
}

func TestVerifyShortfallStoresClaim(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", testThreshold-1)
	identity := gatekeeper.Identity{TelegramID: 44, Username: "nick"}
	reply, err := engine.Verify(
		context.Background(),
		identity,
		"bitcoincash:qaaa",
		"good",
	)
	require.NoError(t, err)
	assert.Contains(t, reply, "below the required")
	participant, err := store.GetParticipantByTelegramID(context.Background(), 44)
	require.NoError(t, err)
	assert.False(t, participant.Verified)
	assert.Equal(t, "bitcoincash:qaaa", participant.BchAddr)
	assert.Equal(t, uint64(testThreshold-1), participant.Merit)
}

func TestVerifyBadSignature(t *testing.T) {
	engine, store, _, _ := testEngine(t)
	identity := gatekeeper.Identity{TelegramID: 45, Username: "adam"}
	for _, signature := range []string{"bad", "malformed"} {
		reply, err := engine.Verify(
			context.Background(),
			identity,
			"bitcoincash:qaaa",
			signature,
		)
		require.NoError(t, err)
		assert.Contains(t, reply, "could not be verified")
	}
	// A failed proof must not create or touch a record
	_, err := store.GetParticipantByTelegramID(context.Background(), 45)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestVerifyMalformedAddress(t *testing.T) {
	engine, _, _, _ := testEngine(t)
	identity := gatekeeper.Identity{TelegramID: 46, Username: "adam"}
	reply, err := engine.Verify(context.Background(), identity, "garbage", "good")
	require.NoError(t, err)
	assert.Contains(t, reply, "could not be verified")
}

func TestVerifyOracleFailureIsFailClosed(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.errs["simpleledger:qaaa"] = errors.New("indexer timeout")
	identity := gatekeeper.Identity{TelegramID: 47, Username: "laszlo"}
	reply, err := engine.Verify(
		context.Background(),
		identity,
		"bitcoincash:qaaa",
		"good",
	)
	require.NoError(t, err)
	assert.Contains(t, reply, "could not be checked")
	_, err = store.GetParticipantByTelegramID(context.Background(), 47)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestVerifyDuplicateClaimRejected(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	alice := gatekeeper.Identity{TelegramID: 48, Username: "alice"}
	bob := gatekeeper.Identity{TelegramID: 49, Username: "bob"}
	_, err := engine.Verify(context.Background(), alice, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	reply, err := engine.Verify(context.Background(), bob, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	assert.Contains(t, reply, "already been claimed by @alice")
	_, err = store.GetParticipantByTelegramID(context.Background(), 49)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestVerifySelfReclaimIsIdempotent(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 50, Username: "wei"}
	for i := 0; i < 2; i++ {
		reply, err := engine.Verify(
			context.Background(),
			identity,
			"bitcoincash:qaaa",
			"good",
		)
		require.NoError(t, err)
		assert.Contains(t, reply, "successfully verified")
	}
	participant, err := store.GetParticipantByTelegramID(context.Background(), 50)
	require.NoError(t, err)
	assert.True(t, participant.Verified)
}

func TestRevoke(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 51, Username: "gavin"}
	_, err := engine.Verify(context.Background(), identity, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	reply, err := engine.Revoke(context.Background(), identity, "bitcoincash:qaaa")
	require.NoError(t, err)
	assert.Contains(t, reply, "has been revoked")
	participant, err := store.GetParticipantByTelegramID(context.Background(), 51)
	require.NoError(t, err)
	assert.False(t, participant.Verified)
	assert.Empty(t, participant.BchAddr)
	assert.Empty(t, participant.SlpAddr)
	assert.Equal(t, uint64(0), participant.Merit)
	// The released address can be claimed by someone else
	other := gatekeeper.Identity{TelegramID: 52, Username: "jeff"}
	reply, err = engine.Verify(context.Background(), other, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	assert.Contains(t, reply, "successfully verified")
}

func TestRevokeUnclaimedAddress(t *testing.T) {
	engine, _, _, _ := testEngine(t)
	identity := gatekeeper.Identity{TelegramID: 53, Username: "gavin"}
	reply, err := engine.Revoke(context.Background(), identity, "bitcoincash:qzzz")
	require.NoError(t, err)
	assert.Contains(t, reply, "nothing to revoke")
}

func TestRevokeWrongOwner(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	owner := gatekeeper.Identity{TelegramID: 54, Username: "alice"}
	_, err := engine.Verify(context.Background(), owner, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	intruder := gatekeeper.Identity{TelegramID: 55, Username: "mallory"}
	reply, err := engine.Revoke(context.Background(), intruder, "bitcoincash:qaaa")
	require.NoError(t, err)
	assert.Contains(t, reply, "not claimed by you")
	participant, err := store.GetParticipantByTelegramID(context.Background(), 54)
	require.NoError(t, err)
	assert.True(t, participant.Verified)
	assert.Equal(t, "bitcoincash:qaaa", participant.BchAddr)
}

func TestRequest(t *testing.T) {
	engine, _, _, wallet := testEngine(t)
	identity := gatekeeper.Identity{TelegramID: 56, Username: "dave"}
	reply, err := engine.Request(context.Background(), identity, "bitcoincash:qaaa")
	require.NoError(t, err)
	assert.Contains(t, reply, "cafe0123")

	wallet.err = errors.New("wallet unavailable")
	reply, err = engine.Request(context.Background(), identity, "bitcoincash:qaaa")
	require.NoError(t, err)
	assert.Contains(t, reply, "could not be sent")
}

func TestQueryMerit(t *testing.T) {
	engine, _, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 57, Username: "carol"}
	_, err := engine.Verify(context.Background(), identity, "bitcoincash:qaaa", "good")
	require.NoError(t, err)

	// Live score, not the stored one
	oracle.setScore("simpleledger:qaaa", 40000)
	reply, err := engine.QueryMerit(context.Background(), "@carol")
	require.NoError(t, err)
	assert.Contains(t, reply, "merit of 40000")

	reply, err = engine.QueryMerit(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Contains(t, reply, "has not verified an address")
}

func TestListVerified(t *testing.T) {
	engine, _, oracle, _ := testEngine(t)
	reply, err := engine.ListVerified(context.Background())
	require.NoError(t, err)
	assert.Contains(t, reply, "No users are verified yet")

	oracle.setScore("simpleledger:qaaa", 35000)
	oracle.setScore("simpleledger:qbbb", 35000)
	for _, identity := range []gatekeeper.Identity{
		{TelegramID: 58, Username: "zoe"},
		{TelegramID: 59, Username: "abe"},
	} {
		addr := "bitcoincash:qaaa"
		if identity.Username == "abe" {
			addr = "bitcoincash:qbbb"
		}
		_, err := engine.Verify(context.Background(), identity, addr, "good")
		require.NoError(t, err)
	}
	reply, err = engine.ListVerified(context.Background())
	require.NoError(t, err)
	// Sorted by username
	assert.Equal(t, "Verified users:\n@abe\n@zoe", reply)
}

func TestRecheckSoftRevokePreservesClaim(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 60, Username: "craig"}
	_, err := engine.Verify(context.Background(), identity, "bitcoincash:qaaa", "good")
	require.NoError(t, err)

	oracle.setScore("simpleledger:qaaa", 100)
	require.NoError(t, engine.Recheck(context.Background(), 60))
	participant, err := store.GetParticipantByTelegramID(context.Background(), 60)
	require.NoError(t, err)
	assert.False(t, participant.Verified)
	assert.Equal(t, uint64(100), participant.Merit)
	// Claim survives so nobody else can grab the address
	assert.Equal(t, "bitcoincash:qaaa", participant.BchAddr)
	other := gatekeeper.Identity{TelegramID: 61, Username: "mallory"}
	reply, err := engine.Verify(context.Background(), other, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	assert.Contains(t, reply, "already been claimed by @craig")
}

func TestRecheckOracleFailureLeavesRecordUntouched(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 62, Username: "vitalik"}
	_, err := engine.Verify(context.Background(), identity, "bitcoincash:qaaa", "good")
	require.NoError(t, err)
	before, err := store.GetParticipantByTelegramID(context.Background(), 62)
	require.NoError(t, err)

	oracle.Lock()
	oracle.errs["simpleledger:qaaa"] = errors.New("indexer timeout")
	oracle.Unlock()
	err = engine.Recheck(context.Background(), 62)
	require.Error(t, err)
	after, err := store.GetParticipantByTelegramID(context.Background(), 62)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.True(t, after.Verified)
	assert.Equal(t, uint64(35000), after.Merit)
}

func TestRecheckRefreshesHealthyRecord(t *testing.T) {
	engine, store, oracle, _ := testEngine(t)
	oracle.setScore("simpleledger:qaaa", 35000)
	identity := gatekeeper.Identity{TelegramID: 63, Username: "peter"}
	_, err := engine.Verify(context.Background(), identity, "bitcoincash:qaaa", "good")
	require.NoError(t, err)

	oracle.setScore("simpleledger:qaaa", 50000)
	require.NoError(t, engine.Recheck(context.Background(), 63))
	participant, err := store.GetParticipantByTelegramID(context.Background(), 63)
	require.NoError(t, err)
	assert.True(t, participant.Verified)
	assert.Equal(t, uint64(50000), participant.Merit)
}

func TestEnsureParticipant(t *testing.T) {
	engine, _, _, _ := testEngine(t)
	identity := gatekeeper.Identity{TelegramID: 64, Username: "newbie"}
	participant, created, err := engine.EnsureParticipant(
		context.Background(),
		identity,
	)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, participant.Verified)

	// Second sighting with a new display name updates it in place
	identity.Username = "renamed"
	participant, created, err = engine.EnsureParticipant(context.Background(), identity)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "renamed", participant.Username)
}
