/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/blacktop/go-ept"
)

// Scenario is a TOML description of a guest memory layout, its hooks, and
// an optional EPT-exit event sequence:
//
//	memory_mib = 64
//
//	[[hooks]]
//	page   = 0x401000
//	shadow = 0x70000
//
//	[[events]]
//	gpa   = 0x401000
//	fetch = true
type Scenario struct {
	MemoryMiB     uint64      `toml:"memory_mib"`
	ArenaCapacity int         `toml:"arena_capacity"`
	Hooks         []HookSpec  `toml:"hooks"`
	Events        []EventSpec `toml:"events"`
}

// HookSpec is one hidden patch: the hooked guest page and the host frame
// holding the patched copy.
type HookSpec struct {
	Page   uint64 `toml:"page"`
	Shadow uint64 `toml:"shadow"`
}

// EventSpec is one EPT exit to replay. Misconfig events are fatal and end
// the replay.
type EventSpec struct {
	GPA       uint64 `toml:"gpa"`
	Fetch     bool   `toml:"fetch"`
	Misconfig bool   `toml:"misconfig"`
}

func loadScenario(path string) (*Scenario, error) {
	var s Scenario
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("failed to load scenario %s: %w", path, err)
	}
	if s.MemoryMiB == 0 {
		s.MemoryMiB = 64
	}
	if s.MemoryMiB%2 != 0 {
		return nil, fmt.Errorf("scenario memory_mib must be a multiple of 2, got %d", s.MemoryMiB)
	}
	if s.ArenaCapacity == 0 {
		// root + PDPT + one PD per GiB + one split PT per hook
		gibs := int(s.MemoryMiB+1023) / 1024
		if gibs == 0 {
			gibs = 1
		}
		s.ArenaCapacity = 2 + gibs + len(s.Hooks) + 4
	}
	return &s, nil
}

// build constructs both hierarchies and installs the scenario's hooks. The
// arenas sit just above the identity-mapped guest range so synthetic table
// addresses never collide with guest frames.
func (s *Scenario) build() (*ept.Shared, error) {
	memBytes := s.MemoryMiB << 20
	arenaBytes := uint64(s.ArenaCapacity) * 4096

	primaryArena, err := ept.NewArena(s.ArenaCapacity, memBytes)
	if err != nil {
		return nil, err
	}
	secondaryArena, err := ept.NewArena(s.ArenaCapacity, memBytes+arenaBytes)
	if err != nil {
		return nil, err
	}

	primary, err := ept.NewHierarchy(primaryArena)
	if err != nil {
		return nil, err
	}
	secondary, err := ept.NewHierarchy(secondaryArena)
	if err != nil {
		return nil, err
	}
	if err := primary.IdentityMap(memBytes); err != nil {
		return nil, fmt.Errorf("failed to map primary view: %w", err)
	}
	if err := secondary.IdentityMap(memBytes); err != nil {
		return nil, fmt.Errorf("failed to map secondary view: %w", err)
	}

	hooks := ept.NewRegistry()
	for _, h := range s.Hooks {
		if _, err := hooks.Install(primary, secondary, h.Page, h.Shadow); err != nil {
			return nil, fmt.Errorf("failed to install hook at 0x%x: %w", h.Page, err)
		}
	}

	return &ept.Shared{Primary: primary, Secondary: secondary, Hooks: hooks}, nil
}
