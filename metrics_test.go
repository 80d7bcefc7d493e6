package ept

import "testing"

func TestMetrics(t *testing.T) {
	ResetMetrics()

	metrics := GetMetrics()
	if metrics.ViolationsHandled != 0 {
		t.Errorf("Expected ViolationsHandled=0, got %d", metrics.ViolationsHandled)
	}

	vcpu, vmcs, shared := newTestVCPU(t, Secondary)
	if _, err := shared.Hooks.Install(shared.Primary, shared.Secondary, 0x401000, 0x70000); err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	metrics = GetMetrics()
	if metrics.HooksInstalled != 1 {
		t.Errorf("Expected HooksInstalled=1, got %d", metrics.HooksInstalled)
	}

	vmcs.raiseViolation(0x401000, false)
	HandleEPTViolation(vcpu)
	vmcs.raiseViolation(0x401000, true)
	HandleEPTViolation(vcpu)

	metrics = GetMetrics()
	if metrics.ViolationsHandled != 2 {
		t.Errorf("Expected ViolationsHandled=2, got %d", metrics.ViolationsHandled)
	}
	if metrics.SwitchesToPrimary != 1 || metrics.SwitchesToSecondary != 1 {
		t.Errorf("Expected one switch each way, got primary=%d secondary=%d",
			metrics.SwitchesToPrimary, metrics.SwitchesToSecondary)
	}
	if metrics.Invalidations != 2 {
		t.Errorf("Expected Invalidations=2, got %d", metrics.Invalidations)
	}

	HandleEPTMisconfiguration(vcpu)
	metrics = GetMetrics()
	if metrics.Misconfigurations != 1 {
		t.Errorf("Expected Misconfigurations=1, got %d", metrics.Misconfigurations)
	}
	if metrics.DiagnosticDumps != 2 {
		t.Errorf("Expected DiagnosticDumps=2 (one per view), got %d", metrics.DiagnosticDumps)
	}

	if err := shared.Hooks.Remove(shared.Primary, shared.Secondary, 0x401000); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got := GetMetrics().HooksRemoved; got != 1 {
		t.Errorf("Expected HooksRemoved=1, got %d", got)
	}

	t.Logf("Final metrics: %+v", GetMetrics())

	ResetMetrics()
	if got := GetMetrics(); got != (Metrics{}) {
		t.Errorf("ResetMetrics left %+v", got)
	}
}
