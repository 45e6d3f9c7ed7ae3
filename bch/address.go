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
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrInvalidInput is returned for malformed addresses and signatures. It is
// user-correctable input, distinct from a clean verification mismatch.
var ErrInvalidInput = errors.New("invalid input")

// Known cashaddr prefixes. Addresses with the ecash prefix are accepted and
// converted; simpleledger is the SLP token address form of the same hash.
const (
	MainnetPrefix = "bitcoincash"
	TestnetPrefix = "bchtest"
	EcashPrefix   = "ecash"
	SlpPrefix     = "simpleledger"
)

// Address type bits in the cashaddr version byte
const (
	AddrTypeP2PKH = 0
	AddrTypeP2SH  = 1
)

const cashCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// cashPolyMod is the cashaddr BCH checksum function, per the cashaddr spec.
// Distinct from bech32's polymod (40-bit checksum, different generator).
func cashPolyMod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := c >> 35
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

// expandPrefix returns the checksum input for an address prefix: the lower 5
// bits of each character followed by a zero separator
func expandPrefix(prefix string) []byte {
	ret := make([]byte, 0, len(prefix)+1)
	for _, c := range prefix {
		ret = append(ret, byte(c)&0x1f)
	}
	ret = append(ret, 0)
	return ret
}

// DecodeCashAddress decodes a cashaddr string into its prefix, address type,
// and hash payload. The prefix may be omitted from the input, in which case
// each of the known prefixes is tried against the checksum.
func DecodeCashAddress(addr string) (string, byte, []byte, error) {
	if addr != strings.ToLower(addr) && addr != strings.ToUpper(addr) {
		return "", 0, nil, fmt.Errorf(
			"%w: mixed-case address",
			ErrInvalidInput,
		)
	}
	addr = strings.ToLower(addr)
	var prefixes []string
	var payload string
	if prefix, rest, ok := strings.Cut(addr, ":"); ok {
		prefixes = []string{prefix}
		payload = rest
	} else {
		prefixes = []string{
			MainnetPrefix,
			TestnetPrefix,
			EcashPrefix,
			SlpPrefix,
		}
		payload = addr
	}
	values := make([]byte, len(payload))
	for i, c := range payload {
		idx := strings.IndexRune(cashCharset, c)
		if idx < 0 {
			return "", 0, nil, fmt.Errorf(
				"%w: invalid character %q in address",
				ErrInvalidInput,
				c,
			)
		}
		values[i] = byte(idx)
	}
	if len(values) < 9 {
		return "", 0, nil, fmt.Errorf("%w: address too short", ErrInvalidInput)
	}
	for _, prefix := range prefixes {
		checkInput := append(expandPrefix(prefix), values...)
		if cashPolyMod(checkInput) != 0 {
			continue
		}
		// Strip the 8 checksum groups and convert back to bytes
		data, err := bech32.ConvertBits(values[:len(values)-8], 5, 8, false)
		if err != nil {
			return "", 0, nil, fmt.Errorf(
				"%w: invalid payload: %s",
				ErrInvalidInput,
				err,
			)
		}
		if len(data) == 0 {
			return "", 0, nil, fmt.Errorf(
				"%w: empty payload",
				ErrInvalidInput,
			)
		}
		version := data[0]
		if version&0x80 != 0 {
			return "", 0, nil, fmt.Errorf(
				"%w: reserved version bit set",
				ErrInvalidInput,
			)
		}
		addrType := (version >> 3) & 0x0f
		hash := data[1:]
		if len(hash) != hashSizeFromVersion(version) {
			return "", 0, nil, fmt.Errorf(
				"%w: hash size mismatch",
				ErrInvalidInput,
			)
		}
		return prefix, addrType, hash, nil
	}
	return "", 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidInput)
}

func hashSizeFromVersion(version byte) int {
	sizes := []int{20, 24, 28, 32, 40, 48, 56, 64}
	return sizes[version&0x07]
}

// EncodeCashAddress encodes an address type and hash payload as a cashaddr
// string with the given prefix
func EncodeCashAddress(
	prefix string,
	addrType byte,
	hash []byte,
) (string, error) {
	sizeBits := byte(0xff)
	for i, size := range []int{20, 24, 28, 32, 40, 48, 56, 64} {
		if len(hash) == size {
			sizeBits = byte(i) // #nosec G115
			break
		}
	}
	if sizeBits == 0xff {
		return "", fmt.Errorf(
			"%w: unsupported hash length %d",
			ErrInvalidInput,
			len(hash),
		)
	}
	version := (addrType << 3) | sizeBits
	payload := append([]byte{version}, hash...)
	data, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert bits: %w", err)
	}
	checkInput := append(expandPrefix(prefix), data...)
	checkInput = append(checkInput, make([]byte, 8)...)
	mod := cashPolyMod(checkInput)
	checksum := make([]byte, 8)
	for i := range checksum {
		checksum[i] = byte((mod >> uint(5*(7-i))) & 0x1f) // #nosec G115
	}
	data = append(data, checksum...)
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte(':')
	for _, d := range data {
		sb.WriteByte(cashCharset[d])
	}
	return sb.String(), nil
}

// NormalizeAddress converts any accepted address form (cashaddr with or
// without prefix, ecash, SLP, or legacy base58) to the canonical cashaddr
// form for the given network prefix
func NormalizeAddress(addr, networkPrefix string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	if _, addrType, hash, err := DecodeCashAddress(addr); err == nil {
		return EncodeCashAddress(networkPrefix, addrType, hash)
	}
	// Fall back to legacy base58
	hash, version, err := base58.CheckDecode(addr)
	if err != nil {
		return "", fmt.Errorf(
			"%w: not a cashaddr or base58 address",
			ErrInvalidInput,
		)
	}
	var addrType byte
	switch version {
	case 0x00, 0x6f:
		addrType = AddrTypeP2PKH
	case 0x05, 0xc4:
		addrType = AddrTypeP2SH
	default:
		return "", fmt.Errorf(
			"%w: unknown base58 version %#x",
			ErrInvalidInput,
			version,
		)
	}
	return EncodeCashAddress(networkPrefix, addrType, hash)
}

// SlpAddress returns the SLP token address form (simpleledger prefix) of the
// given address
func SlpAddress(addr string) (string, error) {
	_, addrType, hash, err := DecodeCashAddress(addr)
	if err != nil {
		return "", err
	}
	return EncodeCashAddress(SlpPrefix, addrType, hash)
}
