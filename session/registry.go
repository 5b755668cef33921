/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package session

import "sync"

// Registry is the mutex-guarded session table the dispatch loop
// consults to find a peer's Session and the stats and CLI surfaces
// consult to list them, spec section 4.3. The dispatch loop itself
// runs single-threaded, but Registry stays lock-protected so it can
// be read safely from a stats exporter goroutine without involving
// the loop.
type Registry struct {
	mu   sync.Mutex
	byID map[uint64]*Session
	next uint64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint64]*Session)}
}

// Add assigns the next session ID, stores s under it and returns the
// ID.
func (r *Registry) Add(s *Session) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	s.ID = id
	r.byID[id] = s
	return id
}

// Get returns the session for id.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Remove deletes the session for id.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// Len reports the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// All returns a snapshot of every tracked session, safe to range over
// after the call returns even if the registry changes concurrently.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// CountByState reports how many tracked sessions are in each State,
// for the idle/handshake session limits in spec section 4.3 and for
// stats export.
func (r *Registry) CountByState() map[State]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[State]int)
	for _, s := range r.byID {
		counts[s.state]++
	}
	return counts
}
