package ept

import "fmt"

// MemPerm represents EPT page permissions.
type MemPerm uint

const (
	MemRead  MemPerm = 1 << 0
	MemWrite MemPerm = 1 << 1
	MemExec  MemPerm = 1 << 2
)

// String renders permissions in ls -l style, e.g. "rw-" or "--x".
func (p MemPerm) String() string {
	b := [3]byte{'-', '-', '-'}
	if p&MemRead != 0 {
		b[0] = 'r'
	}
	if p&MemWrite != 0 {
		b[1] = 'w'
	}
	if p&MemExec != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}

// Entry is one 64-bit EPT entry in the hardware layout (Intel SDM Vol. 3C,
// Section 29.3.2): RWX permission bits 2:0, memory type bits 5:3 on
// terminal entries, large-page bit 7, physical address bits 51:12.
type Entry uint64

const (
	entryRead  Entry = 1 << 0
	entryWrite Entry = 1 << 1
	entryExec  Entry = 1 << 2
	entryLarge Entry = 1 << 7

	entryMemTypeShift     = 3
	entryMemTypeWriteBack = 6

	entryAddrMask Entry = 0x000f_ffff_ffff_f000
)

// Present reports whether the entry maps anything at all. An EPT entry with
// no permission bits set is not present; the access type does not matter.
func (e Entry) Present() bool { return e&(entryRead|entryWrite|entryExec) != 0 }

func (e Entry) Readable() bool   { return e&entryRead != 0 }
func (e Entry) Writable() bool   { return e&entryWrite != 0 }
func (e Entry) Executable() bool { return e&entryExec != 0 }

// IsLarge reports whether the entry terminates the walk with a large page.
// Only meaningful at the PD level.
func (e Entry) IsLarge() bool { return e&entryLarge != 0 }

// Address returns the physical address the entry points at: the next-level
// table for intermediate entries, the page frame for terminal ones.
func (e Entry) Address() uint64 { return uint64(e & entryAddrMask) }

// Perms returns the entry's permission bits as a MemPerm.
func (e Entry) Perms() MemPerm {
	var p MemPerm
	if e.Readable() {
		p |= MemRead
	}
	if e.Writable() {
		p |= MemWrite
	}
	if e.Executable() {
		p |= MemExec
	}
	return p
}

func permBits(perms MemPerm) Entry {
	var b Entry
	if perms&MemRead != 0 {
		b |= entryRead
	}
	if perms&MemWrite != 0 {
		b |= entryWrite
	}
	if perms&MemExec != 0 {
		b |= entryExec
	}
	return b
}

// SetTable points the entry at a next-level table. Intermediate entries
// carry full permissions; restrictions live in the terminal entry.
func (e *Entry) SetTable(addr uint64) {
	*e = Entry(addr)&entryAddrMask | entryRead | entryWrite | entryExec
}

// SetPage terminates the walk at a 4 KiB frame with the given permissions
// and write-back memory type.
func (e *Entry) SetPage(addr uint64, perms MemPerm) {
	*e = Entry(addr)&entryAddrMask | permBits(perms) | entryMemTypeWriteBack<<entryMemTypeShift
}

// SetLargePage terminates the walk at a 2 MiB frame.
func (e *Entry) SetLargePage(addr uint64, perms MemPerm) {
	e.SetPage(addr, perms)
	*e |= entryLarge
}

// SetPerms replaces the permission bits, leaving the target untouched.
func (e *Entry) SetPerms(perms MemPerm) {
	*e = *e&^(entryRead|entryWrite|entryExec) | permBits(perms)
}

// Clear makes the entry not present.
func (e *Entry) Clear() { *e = 0 }

func (e Entry) String() string {
	if !e.Present() {
		return "--- (not present)"
	}
	if e.IsLarge() {
		return fmt.Sprintf("%s -> 0x%x (2MiB)", e.Perms(), e.Address())
	}
	return fmt.Sprintf("%s -> 0x%x", e.Perms(), e.Address())
}
