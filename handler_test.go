package ept

import (
	"testing"
)

// fakeVMCS records every field write and invalidation in order so tests can
// check the switcher's sequencing.
type fakeVMCS struct {
	fields        map[uint32]uint64
	ops           []string // "write:<field>" and "invept" in call order
	eptpWrites    []uint64
	invalidations int
}

func newFakeVMCS() *fakeVMCS {
	return &fakeVMCS{fields: make(map[uint32]uint64)}
}

func (m *fakeVMCS) Read(field uint32) uint64 { return m.fields[field] }

func (m *fakeVMCS) Write(field uint32, value uint64) {
	m.fields[field] = value
	m.ops = append(m.ops, "write")
	if field == VMCSEPTPointer {
		m.eptpWrites = append(m.eptpWrites, value)
	}
}

func (m *fakeVMCS) InvalidateEPT() {
	m.invalidations++
	m.ops = append(m.ops, "invept")
}

// raiseViolation loads the fault state a real EPT-violation exit would
// leave behind.
func (m *fakeVMCS) raiseViolation(gpa uint64, fetch bool) {
	m.fields[VMCSGuestPhysicalAddress] = gpa
	if fetch {
		m.fields[VMCSExitQualification] = 1 << 2
	} else {
		m.fields[VMCSExitQualification] = 1 << 0
	}
}

func newTestVCPU(t *testing.T, initial View) (*VCPU, *fakeVMCS, *Shared) {
	t.Helper()
	shared := newTestShared(t)
	vmcs := newFakeVMCS()
	return NewVCPU(0, vmcs, shared, initial), vmcs, shared
}

func TestHandleEPTViolation(t *testing.T) {
	tests := []struct {
		name    string
		initial View
		fetch   bool
		want    View
	}{
		// Data access always lands on the primary view.
		{"read from primary", Primary, false, Primary},
		{"read from secondary", Secondary, false, Primary},
		// Instruction fetch always lands on the secondary view.
		{"fetch from primary", Primary, true, Secondary},
		{"fetch from secondary", Secondary, true, Secondary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vcpu, vmcs, shared := newTestVCPU(t, tt.initial)
			vmcs.raiseViolation(0x401000, tt.fetch)

			exit := HandleEPTViolation(vcpu)
			if exit != ExitContinue {
				t.Fatalf("exit = %v, want %v (resume without advancing RIP)", exit, ExitContinue)
			}
			if vcpu.ActiveView() != tt.want {
				t.Errorf("active view = %v, want %v", vcpu.ActiveView(), tt.want)
			}
			if got := vmcs.fields[VMCSEPTPointer]; got != shared.EPTP(tt.want) {
				t.Errorf("programmed EPTP = 0x%x, want 0x%x", got, shared.EPTP(tt.want))
			}
			if vmcs.invalidations != 1 {
				t.Errorf("invalidations = %d, want 1", vmcs.invalidations)
			}
		})
	}
}

func TestSwitchSequencing(t *testing.T) {
	vcpu, vmcs, _ := newTestVCPU(t, Primary)
	vcpu.SwitchView(Secondary)

	want := []string{"write", "invept"}
	if len(vmcs.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", vmcs.ops, want)
	}
	for i := range want {
		if vmcs.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v (EPTP write must precede invalidation)", vmcs.ops, want)
		}
	}
}

func TestSwitchIdempotence(t *testing.T) {
	// Switching to the already-active view still performs the register
	// write and the full invalidation, every time.
	vcpu, vmcs, shared := newTestVCPU(t, Primary)

	const repeats = 5
	for i := 0; i < repeats; i++ {
		vcpu.SwitchView(Primary)
	}

	if len(vmcs.eptpWrites) != repeats {
		t.Errorf("EPTP writes = %d, want %d", len(vmcs.eptpWrites), repeats)
	}
	if vmcs.invalidations != repeats {
		t.Errorf("invalidations = %d, want %d", vmcs.invalidations, repeats)
	}
	for i, w := range vmcs.eptpWrites {
		if w != shared.EPTP(Primary) {
			t.Errorf("write %d = 0x%x, want 0x%x", i, w, shared.EPTP(Primary))
		}
	}
}

func TestRepeatedViolationsSameAddress(t *testing.T) {
	// Two consecutive data-access violations on one address
	// both resolve to the primary view, and the second switch still
	// re-invalidates. The loop is bounded: a hook built with consistent
	// views converges, and the test must not spin if it does not.
	vcpu, vmcs, _ := newTestVCPU(t, Secondary)

	const maxReexecutions = 16
	for i := 0; i < maxReexecutions; i++ {
		vmcs.raiseViolation(0x401000, false)
		if exit := HandleEPTViolation(vcpu); exit != ExitContinue {
			t.Fatalf("iteration %d: exit = %v", i, exit)
		}
		if vcpu.ActiveView() != Primary {
			t.Fatalf("iteration %d: view = %v, want %v", i, vcpu.ActiveView(), Primary)
		}
	}
	if vmcs.invalidations != maxReexecutions {
		t.Errorf("invalidations = %d, want %d (no skipped flushes)", vmcs.invalidations, maxReexecutions)
	}
}

func TestHandleEPTMisconfiguration(t *testing.T) {
	t.Run("always fatal", func(t *testing.T) {
		vcpu, vmcs, shared := newTestVCPU(t, Primary)
		if _, err := shared.Hooks.Install(shared.Primary, shared.Secondary, 0x401000, 0x70000); err != nil {
			t.Fatalf("Install failed: %v", err)
		}
		vmcs.fields[VMCSGuestPhysicalAddress] = 0x401000

		if exit := HandleEPTMisconfiguration(vcpu); exit != ExitShutdown {
			t.Fatalf("exit = %v, want %v", exit, ExitShutdown)
		}

		// Irreversibility: repeated invocation never yields a resuming
		// result either.
		for i := 0; i < 3; i++ {
			if exit := HandleEPTMisconfiguration(vcpu); exit != ExitShutdown {
				t.Fatalf("repeat %d: exit = %v, want %v", i, exit, ExitShutdown)
			}
		}
	})

	t.Run("fatal even without diagnostics", func(t *testing.T) {
		vcpu, vmcs, _ := newTestVCPU(t, Primary)
		vmcs.fields[VMCSGuestPhysicalAddress] = 0x401000

		if exit := HandleEPTMisconfiguration(vcpu); exit != ExitShutdown {
			t.Errorf("exit = %v, want %v", exit, ExitShutdown)
		}
	})

	t.Run("never switches views", func(t *testing.T) {
		vcpu, vmcs, _ := newTestVCPU(t, Secondary)
		vmcs.fields[VMCSGuestPhysicalAddress] = 0x401000

		HandleEPTMisconfiguration(vcpu)
		if len(vmcs.eptpWrites) != 0 {
			t.Errorf("misconfiguration handler wrote EPTP: %v", vmcs.eptpWrites)
		}
		if vcpu.ActiveView() != Secondary {
			t.Errorf("active view changed to %v", vcpu.ActiveView())
		}
	})
}

func TestDumpViews(t *testing.T) {
	t.Run("missing record is a distinct error", func(t *testing.T) {
		shared := newTestShared(t)
		if _, _, err := DumpViews(shared, 0x401000); err != ErrNoHookInstalled {
			t.Errorf("DumpViews = %v, want ErrNoHookInstalled", err)
		}
	})

	t.Run("renders both views", func(t *testing.T) {
		shared := newTestShared(t)
		if _, err := shared.Hooks.Install(shared.Primary, shared.Secondary, 0x401000, 0x70000); err != nil {
			t.Fatalf("Install failed: %v", err)
		}

		primary, secondary, err := DumpViews(shared, 0x401000)
		if err != nil {
			t.Fatalf("DumpViews failed: %v", err)
		}
		if len(primary) != 4 || len(secondary) != 4 {
			t.Fatalf("chain lengths = %d, %d; want 4, 4", len(primary), len(secondary))
		}

		ppte := primary[3].Entry
		spte := secondary[3].Entry
		if ppte.Perms() != MemRead|MemWrite {
			t.Errorf("primary PTE perms = %v, want rw-", ppte.Perms())
		}
		if spte.Perms() != MemExec || spte.Address() != 0x70000 {
			t.Errorf("secondary PTE = %v, want --x -> 0x70000", spte)
		}
	})
}
