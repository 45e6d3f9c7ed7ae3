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

package secrets

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/getsops/sops/v3/decrypt"
)

// Decrypt decrypts SOPS-encrypted data using key material from the
// environment (age, GCP KMS, AWS KMS, etc per the SOPS docs)
func Decrypt(data []byte) ([]byte, error) {
	ret, err := decrypt.Data(data, "binary")
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// LoadFile reads a secret from the given path. Files containing a SOPS
// envelope are decrypted; anything else is returned as-is with surrounding
// whitespace trimmed. This lets operators use plaintext files in dev and
// encrypted files in production without a config knob.
func LoadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading secret file: %w", err)
	}
	if bytes.Contains(data, []byte(`"sops"`)) ||
		bytes.Contains(data, []byte("sops:")) {
		decrypted, err := Decrypt(data)
		if err != nil {
			return "", fmt.Errorf("decrypting secret file %s: %w", path, err)
		}
		return strings.TrimSpace(string(decrypted)), nil
	}
	return strings.TrimSpace(string(data)), nil
}
