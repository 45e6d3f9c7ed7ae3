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
	"sync"
)

// identityLocks serializes state-changing commands per identity. Entries are
// reference counted so the map doesn't grow with every identity ever seen.
type identityLocks struct {
	sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	mutex sync.Mutex
	refs  int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{
		entries: make(map[int64]*lockEntry),
	}
}

// Lock acquires the lock for the given identity and returns its unlock
// function
func (l *identityLocks) Lock(id int64) func() {
	l.Mutex.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.Mutex.Unlock()
	entry.mutex.Lock()
	return func() {
		entry.mutex.Unlock()
		l.Mutex.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.Mutex.Unlock()
	}
}
