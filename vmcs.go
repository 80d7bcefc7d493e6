package ept

// VMCS field encodings used by the EPT handlers (Intel SDM Vol. 3D,
// Appendix B).
const (
	VMCSEPTPointer           uint32 = 0x201A
	VMCSGuestPhysicalAddress uint32 = 0x2400
	VMCSExitQualification    uint32 = 0x6400
)

// VMCS abstracts the slice of per-vCPU hardware state the EPT handlers
// touch. Implementations wrap vmread/vmwrite and invept for the vCPU that
// trapped; tests and offline tooling substitute an in-memory fake. The
// calls model raw register moves in VM-exit context and cannot fail.
type VMCS interface {
	// Read returns the current value of a VMCS field.
	Read(field uint32) uint64

	// Write programs a VMCS field.
	Write(field uint32, value uint64)

	// InvalidateEPT flushes every cached guest-physical to host-physical
	// translation for all contexts this hypervisor tracks. Global on
	// purpose: a view switch changes permissions everywhere, not just on
	// the faulting page.
	InvalidateEPT()
}
