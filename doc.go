// Package ept implements the dual-view Extended Page Table engine used to
// hide guest code modifications from the guest itself.
//
// Two complete EPT hierarchies describe the same guest physical address
// space with divergent permissions for hooked pages: the Primary view maps
// the original page content readable and writable, the Secondary view maps
// the patched content execute-only. EPT violations are classified by the
// exit qualification's instruction-fetch bit and resolved by switching the
// active EPT pointer to the view that grants the faulting access, then
// re-executing the guest instruction.
//
// # Views
//
// Build both hierarchies over arenas of page-table nodes and install hooks
// through the registry:
//
//	primaryArena, _ := ept.NewArena(64, 0x1_0000_0000)
//	secondaryArena, _ := ept.NewArena(64, 0x1_4000_0000)
//
//	primary, _ := ept.NewHierarchy(primaryArena)
//	secondary, _ := ept.NewHierarchy(secondaryArena)
//	primary.IdentityMap(64 << 20)
//	secondary.IdentityMap(64 << 20)
//
//	hooks := ept.NewRegistry()
//	hooks.Install(primary, secondary, 0x401000, shadowFrame)
//
//	shared := &ept.Shared{Primary: primary, Secondary: secondary, Hooks: hooks}
//
// # VM-exit handling
//
// The embedding VM-exit framework routes EPT exits here with a per-vCPU
// context wrapping its VMCS access:
//
//	vcpu := ept.NewVCPU(0, vmcs, shared, ept.Primary)
//
//	switch exitReason {
//	case exitEPTViolation:
//		return ept.HandleEPTViolation(vcpu) // ExitContinue: re-run same RIP
//	case exitEPTMisconfiguration:
//		return ept.HandleEPTMisconfiguration(vcpu) // ExitShutdown: never resume
//	}
//
// Violations never fail: every exit qualification classifies to exactly one
// target view. Misconfigurations are fatal; the handler dumps the entry
// chains of both views for the faulting address and returns ExitShutdown so
// the host can attach a debugger or tear the session down.
//
// # Diagnostics
//
// DumpViews renders the live per-level entry chains of both hierarchies for
// a guest physical address, walking through the responsible hook's private
// split tables. It is read-only and safe to call from any fatal path.
//
// # Error Handling
//
// All errors implement the standard Go error interface. Engine-specific
// errors are EPTError values carrying a package error code; sentinel values
// such as ErrNoHookInstalled support errors.Is.
//
// # Platform Support
//
// The engine itself is pure state manipulation and runs anywhere. Supported
// reports whether the host could drive it against real hardware (Linux with
// an accessible /dev/kvm and a CPU advertising VMX with EPT); other
// platforms report not supported.
package ept
