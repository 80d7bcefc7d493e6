package ept

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ExitType tells the VM-exit framework how to proceed after a handler
// returns.
type ExitType int

const (
	// ExitContinue resumes the guest without advancing the instruction
	// pointer: the faulting instruction re-executes under the newly
	// selected view and now succeeds.
	ExitContinue ExitType = iota

	// ExitShutdown ends the hypervisor session. The framework decides the
	// policy: attach a debugger, log and terminate, or tear down cleanly.
	// No guest instruction runs after a handler returns this.
	ExitShutdown
)

func (e ExitType) String() string {
	switch e {
	case ExitContinue:
		return "continue"
	case ExitShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("ExitType(%d)", int(e))
	}
}

// HandleEPTViolation handles an EPT-violation VM exit: a guest access the
// active view's permissions forbid. Classification is total and
// deterministic; the only side effect is the view switch. The guest
// instruction pointer is left alone so the access retries under the new
// view.
//
// An access that still faults after the switch means the hook's two views
// were built with inconsistent permissions. That is the hook installer's
// invariant to uphold; this handler does not loop-detect.
func HandleEPTViolation(c *VCPU) ExitType {
	start := time.Now()
	defer func() {
		recordViolation(time.Since(start))
	}()

	gpa := c.vmcs.Read(VMCSGuestPhysicalAddress)
	qual := ParseViolationQualification(c.vmcs.Read(VMCSExitQualification))

	logger.WithFields(logrus.Fields{
		"vcpu":          c.id,
		"gpa":           fmt.Sprintf("0x%x", gpa),
		"qualification": qual.String(),
		"from":          c.active,
		"to":            qual.TargetView(),
	}).Debug("handling EPT violation")

	c.SwitchView(qual.TargetView())

	return ExitContinue
}

// HandleEPTMisconfiguration handles an EPT-misconfiguration VM exit. Unlike
// a violation, this means the hierarchy itself is structurally invalid for
// the faulting address, independent of the access type. There is no
// recovery: a retried access against a corrupt hierarchy could succeed
// nondeterministically or corrupt host memory. The handler dumps both
// views' entry chains through the current hook's split tables, then
// returns ExitShutdown, always.
func HandleEPTMisconfiguration(c *VCPU) ExitType {
	recordMisconfiguration()

	gpa := c.vmcs.Read(VMCSGuestPhysicalAddress)
	logger.WithFields(logrus.Fields{
		"vcpu": c.id,
		"gpa":  fmt.Sprintf("0x%x", gpa),
	}).Error("EPT misconfiguration: hierarchy is structurally invalid, halting")

	if _, _, err := DumpViews(c.shared, gpa); err != nil {
		// Missing diagnostics never soften the outcome.
		logger.WithError(err).Error("EPT diagnostic dump unavailable")
	}

	return ExitShutdown
}
