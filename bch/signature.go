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

package bch

import (
	"bytes"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// signedMessageMagic is the prefix used by the Bitcoin signed-message scheme,
// shared by BCH wallet tooling
const signedMessageMagic = "Bitcoin Signed Message:\n"

// compactSigSize is the size of a recoverable compact signature: 1 header
// byte plus 32-byte R and S values
const compactSigSize = 65

// Verifier validates signed-message ownership proofs for addresses on a
// given network. It is stateless and safe for concurrent use.
type Verifier struct {
	// NetworkPrefix is the canonical cashaddr prefix addresses are
	// normalized to before verification (e.g. "bitcoincash")
	NetworkPrefix string
}

func NewVerifier(networkPrefix string) *Verifier {
	if networkPrefix == "" {
		networkPrefix = MainnetPrefix
	}
	return &Verifier{NetworkPrefix: networkPrefix}
}

// NormalizeAddress converts any accepted address form to the canonical
// cashaddr form for the verifier's network
func (v *Verifier) NormalizeAddress(addr string) (string, error) {
	return NormalizeAddress(addr, v.NetworkPrefix)
}

// SlpAddress returns the SLP token address form of the given address
func (v *Verifier) SlpAddress(addr string) (string, error) {
	return SlpAddress(addr)
}

// VerifyMessage checks that signature is a valid signed-message proof of the
// given message by the private key behind addr. The signature is the
// base64-encoded recoverable compact form produced by BCH wallet signing
// tools. Returns (false, nil) for a well-formed signature that does not
// match, and ErrInvalidInput for malformed addresses or signatures.
func (v *Verifier) VerifyMessage(
	addr string,
	signature string,
	message string,
) (bool, error) {
	normalized, err := v.NormalizeAddress(addr)
	if err != nil {
		return false, err
	}
	_, addrType, addrHash, err := DecodeCashAddress(normalized)
	if err != nil {
		return false, err
	}
	if addrType != AddrTypeP2PKH {
		// Only pay-to-pubkey-hash addresses can sign messages
		return false, fmt.Errorf(
			"%w: not a P2PKH address",
			ErrInvalidInput,
		)
	}
	sigBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf(
			"%w: signature is not valid base64",
			ErrInvalidInput,
		)
	}
	if len(sigBytes) != compactSigSize {
		return false, fmt.Errorf(
			"%w: signature must be %d bytes, got %d",
			ErrInvalidInput,
			compactSigSize,
			len(sigBytes),
		)
	}
	digest := messageDigest(message)
	pubKey, wasCompressed, err := ecdsa.RecoverCompact(sigBytes, digest)
	if err != nil {
		// Recovery failure means the signature doesn't decode to a point
		// on the curve; treat as a definite non-match rather than an error
		return false, nil
	}
	var serialized []byte
	if wasCompressed {
		serialized = pubKey.SerializeCompressed()
	} else {
		serialized = pubKey.SerializeUncompressed()
	}
	recoveredHash := btcutil.Hash160(serialized)
	return subtle.ConstantTimeCompare(recoveredHash, addrHash) == 1, nil
}

// messageDigest computes the double-SHA256 digest of a message in the
// signed-message envelope: varint-prefixed magic followed by the
// varint-prefixed message
func messageDigest(message string) []byte {
	var buf bytes.Buffer
	writeVarInt(&buf, uint64(len(signedMessageMagic)))
	buf.WriteString(signedMessageMagic)
	writeVarInt(&buf, uint64(len(message)))
	buf.WriteString(message)
	return chainhash.DoubleHashB(buf.Bytes())
}

func writeVarInt(buf *bytes.Buffer, val uint64) {
	switch {
	case val < 0xfd:
		buf.WriteByte(byte(val))
	case val <= 0xffff:
		buf.WriteByte(0xfd)
		_ = binary.Write(buf, binary.LittleEndian, uint16(val)) // #nosec G115
	case val <= 0xffffffff:
		buf.WriteByte(0xfe)
		_ = binary.Write(buf, binary.LittleEndian, uint32(val)) // #nosec G115
	default:
		buf.WriteByte(0xff)
		_ = binary.Write(buf, binary.LittleEndian, val)
	}
}
