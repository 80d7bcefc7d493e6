package ept

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hook describes one hidden code patch: a guest page whose two views
// diverge. The split page tables are private to this hook; splitting down
// to 4 KiB leaves every sibling page in the 2 MiB region on its original
// mapping.
type Hook struct {
	// GPA is the hooked guest physical page, 4 KiB aligned.
	GPA uint64

	// ShadowHPA is the host frame holding the patched copy of the page,
	// exposed execute-only by the secondary view.
	ShadowHPA uint64

	// PrimaryPT and SecondaryPT are the split page-table fragments
	// installed into the respective hierarchies for this page. Diagnostic
	// walks pass them back to DumpEntries.
	PrimaryPT   TableID
	SecondaryPT TableID

	// largeHPA and largePerms preserve the 2 MiB mapping the split
	// replaced, so removal can restore it exactly.
	largeHPA   uint64
	largePerms MemPerm
}

// Registry is the ordered collection of installed hooks. The cursor is one
// past the most recently installed record; it never indexes backwards
// except through Current, which guards the empty case.
//
// The VM-exit handlers only read the registry. Install and Remove mutate
// both hierarchies and must not race with violation handling on other
// logical processors; the caller provides that synchronization.
type Registry struct {
	mu     sync.Mutex
	hooks  []*Hook
	cursor int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Len returns the number of installed hooks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hooks)
}

// Cursor returns the index one past the most recently installed hook.
func (r *Registry) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Hook borrows a record by insertion index.
func (r *Registry) Hook(i int) (*Hook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.hooks) {
		return nil, fmt.Errorf("ept: hook index %d of %d: %w", i, len(r.hooks), ErrOutOfRange)
	}
	return r.hooks[i], nil
}

// Current borrows the most recently installed hook, the one diagnostics
// report against. Fails with ErrNoHookInstalled when the cursor is zero
// rather than indexing cursor-1.
func (r *Registry) Current() (*Hook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 {
		return nil, ErrNoHookInstalled
	}
	return r.hooks[r.cursor-1], nil
}

// Install hides a patch on the 4 KiB guest page at gpa. Both hierarchies'
// 2 MiB mappings of the page are split with a private table each, then the
// views diverge: the primary keeps the original frame readable and
// writable, the secondary remaps the page to the shadow frame execute-only.
// The caller switches nothing; the next guest access faults and the
// dispatcher picks the right view.
func (r *Registry) Install(primary, secondary *Hierarchy, gpa, shadowHPA uint64) (*Hook, error) {
	if gpa%PageSize4K != 0 {
		return nil, fmt.Errorf("ept: hook page 0x%x: %w", gpa, ErrUnaligned)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, h := range r.hooks {
		if h.GPA == gpa {
			return nil, fmt.Errorf("ept: hook page 0x%x: %w", gpa, ErrHookExists)
		}
	}

	large, err := primary.Walk(gpa)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve hook page 0x%x: %w", gpa, err)
	}
	if large.Level != LevelPD {
		return nil, fmt.Errorf("ept: hook page 0x%x: %w", gpa, ErrNotLarge)
	}

	// unwind collapses a view back to its pre-split mapping when a later
	// install step fails, so the page stays hookable. The detached PT node
	// stays allocated; the arena does not recycle.
	unwind := func(h *Hierarchy) {
		if err := h.Merge(gpa, large.HPA, large.Perms); err != nil {
			logger.WithError(err).WithField("gpa", fmt.Sprintf("0x%x", gpa)).
				Error("failed to restore mapping after aborted hook install")
		}
	}

	ppt, err := primary.Split(gpa)
	if err != nil {
		return nil, fmt.Errorf("failed to split primary view for 0x%x: %w", gpa, err)
	}
	spt, err := secondary.Split(gpa)
	if err != nil {
		unwind(primary)
		return nil, fmt.Errorf("failed to split secondary view for 0x%x: %w", gpa, err)
	}

	if err := primary.SetPagePermissions(gpa, MemRead|MemWrite); err != nil {
		unwind(primary)
		unwind(secondary)
		return nil, fmt.Errorf("failed to protect primary page 0x%x: %w", gpa, err)
	}
	if err := secondary.RemapPage(gpa, shadowHPA, MemExec); err != nil {
		unwind(primary)
		unwind(secondary)
		return nil, fmt.Errorf("failed to shadow secondary page 0x%x: %w", gpa, err)
	}

	hook := &Hook{
		GPA:         gpa,
		ShadowHPA:   shadowHPA,
		PrimaryPT:   ppt,
		SecondaryPT: spt,
		largeHPA:    large.HPA,
		largePerms:  large.Perms,
	}
	r.hooks = append(r.hooks, hook)
	r.cursor = len(r.hooks)

	recordHookInstall()
	logger.WithFields(logrus.Fields{
		"gpa":    fmt.Sprintf("0x%x", gpa),
		"shadow": fmt.Sprintf("0x%x", shadowHPA),
		"cursor": r.cursor,
	}).Debug("installed EPT hook")
	return hook, nil
}

// Remove collapses both views' split mappings for the hooked page back to
// full-permission 2 MiB pages and drops the record. The cursor follows the
// shortened list.
func (r *Registry) Remove(primary, secondary *Hierarchy, gpa uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, h := range r.hooks {
		if h.GPA == gpa {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("ept: no hook on page 0x%x: %w", gpa, ErrNoHookInstalled)
	}

	hook := r.hooks[idx]
	if err := primary.Merge(gpa, hook.largeHPA, hook.largePerms); err != nil {
		return fmt.Errorf("failed to merge primary view for 0x%x: %w", gpa, err)
	}
	if err := secondary.Merge(gpa, hook.largeHPA, hook.largePerms); err != nil {
		return fmt.Errorf("failed to merge secondary view for 0x%x: %w", gpa, err)
	}

	r.hooks = append(r.hooks[:idx], r.hooks[idx+1:]...)
	r.cursor = len(r.hooks)

	recordHookRemove()
	return nil
}
