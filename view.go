package ept

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// View selects which EPT hierarchy is active. Both hierarchies exist in
// memory at all times; exactly one is programmed into a vCPU's EPT pointer
// at any instant.
type View int

const (
	// Primary maps hooked pages to their original content, readable and
	// writable but not executable.
	Primary View = iota
	// Secondary maps hooked pages to their patched content, execute-only.
	Secondary
)

func (v View) String() string {
	switch v {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

// Shared is the state common to every vCPU: both hierarchies and the hook
// registry. The handlers in this package only read it; hook installation
// mutates it and must be externally synchronized against in-flight
// violation handling (e.g. by pausing all vCPUs).
type Shared struct {
	Primary   *Hierarchy
	Secondary *Hierarchy
	Hooks     *Registry
}

// Hierarchy returns the hierarchy backing a view.
func (s *Shared) Hierarchy(v View) *Hierarchy {
	if v == Secondary {
		return s.Secondary
	}
	return s.Primary
}

// EPTP returns the EPT pointer value for a view.
func (s *Shared) EPTP(v View) uint64 {
	return s.Hierarchy(v).EPTP()
}

// VCPU is the per-logical-processor context the EPT handlers run against.
// Each logical processor owns its own view-register and translation-cache
// state, so VCPUs never need to coordinate view switches with each other.
type VCPU struct {
	id     int
	vmcs   VMCS
	shared *Shared
	active View
}

// NewVCPU wraps one logical processor's VMCS access. initial names the view
// the bring-up code programmed before guest execution began; either view is
// a legitimate starting state.
func NewVCPU(id int, vmcs VMCS, shared *Shared, initial View) *VCPU {
	return &VCPU{id: id, vmcs: vmcs, shared: shared, active: initial}
}

// ID returns the logical-processor number.
func (c *VCPU) ID() int { return c.id }

// ActiveView returns the most recently programmed view.
func (c *VCPU) ActiveView() View { return c.active }

// Shared returns the VM-wide state this vCPU operates on.
func (c *VCPU) Shared() *Shared { return c.shared }

// SwitchView programs the view's root into the EPT pointer and then
// invalidates all cached translations, in that order. Both steps run
// unconditionally on every call, even when the destination is already
// active: correctness depends on the caches reflecting the selected view's
// permissions, not on the root address alone.
func (c *VCPU) SwitchView(v View) {
	eptp := c.shared.EPTP(v)
	c.vmcs.Write(VMCSEPTPointer, eptp)
	c.vmcs.InvalidateEPT()
	c.active = v

	recordSwitch(v)
	logger.WithFields(logrus.Fields{
		"vcpu": c.id,
		"view": v,
		"eptp": fmt.Sprintf("0x%x", eptp),
	}).Debug("switched EPT view")
}
