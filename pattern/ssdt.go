package pattern

import (
	"encoding/binary"
	"fmt"
)

// kiSystemServiceStart identifies the permission-decoding prologue of
// nt!KiSystemServiceStart:
//
//	8bf8            mov edi, eax
//	c1ef07          shr edi, 0x7
//	83e720          and edi, 0x20
//	25ff0f0000      and eax, 0xfff
//
// It is immediately followed by rip-relative loads of
// KeServiceDescriptorTable (lea r10) and KeServiceDescriptorTableShadow
// (lea r11).
const kiSystemServiceStart = "8B F8 C1 EF 07 83 E7 20 25 FF 0F 00 00"

const (
	leaInstrSize   = 7 // 4C 8D 1D xx xx xx xx
	leaDispOffset  = 3
	win32kTableOff = 0x20
)

// ServiceTables holds the virtual addresses of the NT and Win32k service
// descriptor tables.
type ServiceTables struct {
	NT     uint64
	Win32k uint64
}

// FindServiceTables locates KeServiceDescriptorTableShadow inside a kernel
// image loaded at base by scanning for the KiSystemServiceStart signature
// and resolving the rip-relative lea that follows it.
func FindServiceTables(kernel []byte, base uint64) (ServiceTables, error) {
	sig, err := Parse(kiSystemServiceStart)
	if err != nil {
		return ServiceTables{}, err
	}
	start, ok := sig.Find(kernel)
	if !ok {
		return ServiceTables{}, fmt.Errorf("KiSystemServiceStart: %w", ErrNotFound)
	}

	// lea r10, [rel KeServiceDescriptorTable] follows the signature; the
	// shadow table's lea r11 is the next instruction.
	leaR10 := start + len(sig)
	leaR11 := leaR10 + leaInstrSize
	dispAt := leaR11 + leaDispOffset
	if dispAt+4 > len(kernel) {
		return ServiceTables{}, fmt.Errorf("lea r11 displacement at 0x%x: %w", dispAt, ErrTruncated)
	}
	disp := int32(binary.LittleEndian.Uint32(kernel[dispAt:]))

	// rip-relative: the displacement counts from the end of the lea.
	shadow := int64(leaR11+leaInstrSize) + int64(disp)
	if shadow < 0 || shadow+win32kTableOff >= int64(len(kernel)) {
		return ServiceTables{}, fmt.Errorf("shadow table offset 0x%x: %w", shadow, ErrTruncated)
	}

	return ServiceTables{
		NT:     base + uint64(shadow),
		Win32k: base + uint64(shadow) + win32kTableOff,
	}, nil
}
