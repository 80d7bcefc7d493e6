package ept

import "fmt"

const (
	entriesPerTable = 512

	// tableSize is the byte footprint of one node; nodes occupy consecutive
	// synthetic physical frames starting at the arena base.
	tableSize = entriesPerTable * 8
)

// Table is one 4 KiB page-table node: 512 8-byte entries.
type Table [entriesPerTable]Entry

// TableID is an opaque handle naming one node in an Arena.
type TableID uint32

// NoTable is the zero-value-adjacent "no substitution" handle accepted by
// diagnostic walks.
const NoTable TableID = ^TableID(0)

// Arena owns a fixed pool of page-table nodes and hands them out by handle.
// All hierarchy code goes through its bounds-checked accessors; nothing in
// this package does raw pointer arithmetic over table memory. Allocation is
// bump-only: nodes are never recycled, matching the pre-allocated table
// model of the hook installer.
type Arena struct {
	base   uint64
	tables []Table
	used   int
}

// NewArena creates an arena of capacity nodes whose first node sits at the
// synthetic physical address base. The base must be page-aligned and must
// not overlap guest frames the hierarchies will map.
func NewArena(capacity int, base uint64) (*Arena, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ept: arena capacity must be positive, got %d", capacity)
	}
	if base%tableSize != 0 {
		return nil, fmt.Errorf("ept: arena base 0x%x: %w", base, ErrUnaligned)
	}
	return &Arena{
		base:   base,
		tables: make([]Table, capacity),
	}, nil
}

// Alloc returns a handle to a zeroed node.
func (a *Arena) Alloc() (TableID, error) {
	if a.used >= len(a.tables) {
		return NoTable, ErrArenaFull
	}
	id := TableID(a.used)
	a.used++
	return id, nil
}

// Table resolves a handle to its node.
func (a *Arena) Table(id TableID) (*Table, error) {
	if int(id) >= a.used {
		return nil, fmt.Errorf("ept: table handle %d (allocated %d): %w", id, a.used, ErrOutOfRange)
	}
	return &a.tables[id], nil
}

// Addr returns the synthetic physical address of a node, as stored in the
// entries that link to it.
func (a *Arena) Addr(id TableID) (uint64, error) {
	if int(id) >= a.used {
		return 0, fmt.Errorf("ept: table handle %d (allocated %d): %w", id, a.used, ErrOutOfRange)
	}
	return a.base + uint64(id)*tableSize, nil
}

// Resolve maps a physical address stored in an entry back to the node it
// names. Addresses outside the arena, or inside it but unallocated or
// misaligned, are rejected.
func (a *Arena) Resolve(addr uint64) (TableID, error) {
	if addr < a.base || addr >= a.base+uint64(a.used)*tableSize {
		return NoTable, fmt.Errorf("ept: 0x%x is not an allocated table address: %w", addr, ErrOutOfRange)
	}
	off := addr - a.base
	if off%tableSize != 0 {
		return NoTable, fmt.Errorf("ept: table address 0x%x: %w", addr, ErrUnaligned)
	}
	return TableID(off / tableSize), nil
}

// Len returns the number of allocated nodes.
func (a *Arena) Len() int { return a.used }

// Cap returns the arena capacity in nodes.
func (a *Arena) Cap() int { return len(a.tables) }
