/*
Copyright 2025 Memris Contributors

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
package column

import (
	"sync"
	"sync/atomic"
)

// Pool interns strings to dense uint32 handles so string columns store
// fixed-width cells. Handles are stable for the pool's lifetime and
// resolve without locking; interning takes the pool mutex.
type Pool struct {
	mu      sync.Mutex
	handles map[string]uint32
	strings atomic.Pointer[[]string]
}

// NewPool creates an empty string pool
func NewPool() *Pool {
	p := &Pool{handles: make(map[string]uint32)}
	s := make([]string, 0, 64)
	p.strings.Store(&s)
	return p
}

// Intern returns the stable handle for s, adding it if new
func (p *Pool) Intern(s string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.handles[s]; ok {
		return h
	}
	cur := *p.strings.Load()
	h := uint32(len(cur))
	// Copy on grow so concurrent Resolve never observes a slice whose
	// backing array is being appended to.
	next := make([]string, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = s
	p.strings.Store(&next)
	p.handles[s] = h
	return h
}

// Handle returns the handle for s without interning it
func (p *Pool) Handle(s string) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[s]
	return h, ok
}

// Resolve returns the string for a handle. Lock-free.
func (p *Pool) Resolve(h uint32) (string, bool) {
	cur := *p.strings.Load()
	if int(h) >= len(cur) {
		return "", false
	}
	return cur[h], true
}

// Size returns the number of interned strings
func (p *Pool) Size() int {
	return len(*p.strings.Load())
}
