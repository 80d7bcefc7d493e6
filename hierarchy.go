package ept

import "fmt"

// Level identifies one step of the 4-level EPT walk, top down.
type Level int

const (
	LevelPML4 Level = iota
	LevelPDPT
	LevelPD
	LevelPT
)

func (l Level) String() string {
	switch l {
	case LevelPML4:
		return "PML4E"
	case LevelPDPT:
		return "PDPTE"
	case LevelPD:
		return "PDE"
	case LevelPT:
		return "PTE"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// shift is the low bit of the 9-bit index this level extracts from a guest
// physical address: 39, 30, 21, 12.
func (l Level) shift() uint { return 39 - 9*uint(l) }

func levelIndex(gpa uint64, l Level) int {
	return int(gpa >> l.shift() & (entriesPerTable - 1))
}

const (
	// PageSize4K is the finest mapping granularity, the unit of hook splits.
	PageSize4K uint64 = 1 << 12
	// PageSize2M is the identity-map granularity.
	PageSize2M uint64 = 1 << 21

	// EPTP low-bit format: write-back paging-structure memory type and a
	// 4-level walk (encoded as length minus one).
	eptpMemTypeWriteBack = 6
	eptpWalkLength       = 3
)

// Mapping is the result of resolving a guest physical address through one
// hierarchy.
type Mapping struct {
	GPA   uint64
	HPA   uint64
	Size  uint64
	Perms MemPerm
	Level Level
}

// Hierarchy is one complete EPT view over guest physical memory: a 4-level
// radix tree of arena nodes rooted at a single PML4 table.
type Hierarchy struct {
	arena *Arena
	root  TableID
}

// NewHierarchy allocates an empty hierarchy on the arena.
func NewHierarchy(arena *Arena) (*Hierarchy, error) {
	if arena == nil {
		return nil, fmt.Errorf("ept: hierarchy requires an arena")
	}
	root, err := arena.Alloc()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate PML4: %w", err)
	}
	return &Hierarchy{arena: arena, root: root}, nil
}

// Root returns the handle of the PML4 table.
func (h *Hierarchy) Root() TableID { return h.root }

// EPTP returns the value to program into the EPT pointer VMCS field for
// this view: the root physical address plus format bits.
func (h *Hierarchy) EPTP() uint64 {
	addr, err := h.arena.Addr(h.root)
	if err != nil {
		// The root is allocated in NewHierarchy; this cannot fail on a
		// well-formed hierarchy.
		panic(err)
	}
	return addr | eptpMemTypeWriteBack | eptpWalkLength<<3
}

// IdentityMap maps [0, size) onto itself with 2 MiB pages and full RWX
// permissions. size must be a positive multiple of 2 MiB. Needs one PDPT
// plus one PD per GiB of mapped space from the arena.
func (h *Hierarchy) IdentityMap(size uint64) error {
	if size == 0 || size%PageSize2M != 0 {
		return fmt.Errorf("ept: identity map size 0x%x must be a positive 2 MiB multiple: %w", size, ErrUnaligned)
	}
	if size > 1<<39 {
		return fmt.Errorf("ept: identity map size 0x%x exceeds one PML4 entry (512 GiB)", size)
	}

	pml4, err := h.arena.Table(h.root)
	if err != nil {
		return err
	}
	pdptID, err := h.arena.Alloc()
	if err != nil {
		return fmt.Errorf("failed to allocate PDPT: %w", err)
	}
	pdptAddr, _ := h.arena.Addr(pdptID)
	pml4[0].SetTable(pdptAddr)

	pdpt, _ := h.arena.Table(pdptID)
	for addr := uint64(0); addr < size; addr += PageSize2M {
		pdptIdx := levelIndex(addr, LevelPDPT)
		if !pdpt[pdptIdx].Present() {
			pdID, err := h.arena.Alloc()
			if err != nil {
				return fmt.Errorf("failed to allocate PD for GiB %d: %w", pdptIdx, err)
			}
			pdAddr, _ := h.arena.Addr(pdID)
			pdpt[pdptIdx].SetTable(pdAddr)
		}
		pd, err := h.next(pdpt[pdptIdx])
		if err != nil {
			return err
		}
		pd[levelIndex(addr, LevelPD)].SetLargePage(addr, MemRead|MemWrite|MemExec)
	}
	return nil
}

// next follows an intermediate entry to the table it links to.
func (h *Hierarchy) next(e Entry) (*Table, error) {
	id, err := h.arena.Resolve(e.Address())
	if err != nil {
		return nil, err
	}
	return h.arena.Table(id)
}

// pde returns the PD entry covering gpa, walking PML4 and PDPT.
func (h *Hierarchy) pde(gpa uint64) (*Entry, error) {
	table, err := h.arena.Table(h.root)
	if err != nil {
		return nil, err
	}
	for _, level := range []Level{LevelPML4, LevelPDPT} {
		e := table[levelIndex(gpa, level)]
		if !e.Present() {
			return nil, fmt.Errorf("ept: no %s for 0x%x: %w", level, gpa, ErrNotMapped)
		}
		if table, err = h.next(e); err != nil {
			return nil, err
		}
	}
	return &table[levelIndex(gpa, LevelPD)], nil
}

// pte returns the PT entry covering gpa. The mapping must already be split
// down to 4 KiB.
func (h *Hierarchy) pte(gpa uint64) (*Entry, error) {
	pde, err := h.pde(gpa)
	if err != nil {
		return nil, err
	}
	if !pde.Present() {
		return nil, fmt.Errorf("ept: no PDE for 0x%x: %w", gpa, ErrNotMapped)
	}
	if pde.IsLarge() {
		return nil, fmt.Errorf("ept: 0x%x is mapped by a 2 MiB page: %w", gpa, ErrNotSplit)
	}
	pt, err := h.next(*pde)
	if err != nil {
		return nil, err
	}
	return &pt[levelIndex(gpa, LevelPT)], nil
}

// Walk resolves gpa to its terminal mapping. Read-only.
func (h *Hierarchy) Walk(gpa uint64) (Mapping, error) {
	pde, err := h.pde(gpa)
	if err != nil {
		return Mapping{}, err
	}
	if !pde.Present() {
		return Mapping{}, fmt.Errorf("ept: no PDE for 0x%x: %w", gpa, ErrNotMapped)
	}
	if pde.IsLarge() {
		return Mapping{
			GPA:   gpa &^ (PageSize2M - 1),
			HPA:   pde.Address(),
			Size:  PageSize2M,
			Perms: pde.Perms(),
			Level: LevelPD,
		}, nil
	}
	pt, err := h.next(*pde)
	if err != nil {
		return Mapping{}, err
	}
	pte := pt[levelIndex(gpa, LevelPT)]
	if !pte.Present() {
		return Mapping{}, fmt.Errorf("ept: no PTE for 0x%x: %w", gpa, ErrNotMapped)
	}
	return Mapping{
		GPA:   gpa &^ (PageSize4K - 1),
		HPA:   pte.Address(),
		Size:  PageSize4K,
		Perms: pte.Perms(),
		Level: LevelPT,
	}, nil
}

// Split replaces the 2 MiB mapping covering gpa with a freshly allocated
// 4 KiB page table whose entries reproduce the large page's target and
// permissions slot for slot. Sibling regions are untouched. Returns the
// handle of the new table so the caller can keep it for diagnostic walks.
func (h *Hierarchy) Split(gpa uint64) (TableID, error) {
	pde, err := h.pde(gpa)
	if err != nil {
		return NoTable, err
	}
	if !pde.Present() {
		return NoTable, fmt.Errorf("ept: no PDE for 0x%x: %w", gpa, ErrNotMapped)
	}
	if !pde.IsLarge() {
		return NoTable, fmt.Errorf("ept: PDE for 0x%x: %w", gpa, ErrNotLarge)
	}

	ptID, err := h.arena.Alloc()
	if err != nil {
		return NoTable, fmt.Errorf("failed to allocate split PT for 0x%x: %w", gpa, err)
	}
	pt, _ := h.arena.Table(ptID)
	base, perms := pde.Address(), pde.Perms()
	for i := range pt {
		pt[i].SetPage(base+uint64(i)*PageSize4K, perms)
	}
	ptAddr, _ := h.arena.Addr(ptID)
	pde.SetTable(ptAddr)
	return ptID, nil
}

// Merge collapses the split mapping covering gpa back to a single 2 MiB
// page at hpa with the given permissions. The detached PT node stays
// allocated; the arena does not recycle.
func (h *Hierarchy) Merge(gpa, hpa uint64, perms MemPerm) error {
	if hpa%PageSize2M != 0 {
		return fmt.Errorf("ept: large frame 0x%x: %w", hpa, ErrUnaligned)
	}
	pde, err := h.pde(gpa)
	if err != nil {
		return err
	}
	if !pde.Present() {
		return fmt.Errorf("ept: no PDE for 0x%x: %w", gpa, ErrNotMapped)
	}
	if pde.IsLarge() {
		return fmt.Errorf("ept: PDE for 0x%x: %w", gpa, ErrNotSplit)
	}
	pde.SetLargePage(hpa, perms)
	return nil
}

// SetPagePermissions rewrites the permission bits of the 4 KiB terminal
// entry covering gpa, leaving its target frame alone.
func (h *Hierarchy) SetPagePermissions(gpa uint64, perms MemPerm) error {
	pte, err := h.pte(gpa)
	if err != nil {
		return err
	}
	if !pte.Present() {
		return fmt.Errorf("ept: no PTE for 0x%x: %w", gpa, ErrNotMapped)
	}
	pte.SetPerms(perms)
	return nil
}

// RemapPage points the 4 KiB terminal entry covering gpa at a different
// host frame with the given permissions. This is how the secondary view
// exposes a patched shadow copy of a hooked page.
func (h *Hierarchy) RemapPage(gpa, hpa uint64, perms MemPerm) error {
	if hpa%PageSize4K != 0 {
		return fmt.Errorf("ept: shadow frame 0x%x: %w", hpa, ErrUnaligned)
	}
	pte, err := h.pte(gpa)
	if err != nil {
		return err
	}
	pte.SetPage(hpa, perms)
	return nil
}
