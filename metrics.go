package ept

import (
	"sync/atomic"
	"time"
)

// Performance metrics for monitoring the EPT engine
var (
	// Operation counters
	violationCount       uint64
	misconfigCount       uint64
	switchPrimaryCount   uint64
	switchSecondaryCount uint64
	invalidationCount    uint64
	dumpCount            uint64
	hookInstallCount     uint64
	hookRemoveCount      uint64

	// Timing metrics (nanoseconds)
	totalViolationTime uint64
)

// Metrics provides access to performance metrics
type Metrics struct {
	ViolationsHandled   uint64 `json:"violations_handled"`
	Misconfigurations   uint64 `json:"misconfigurations"`
	SwitchesToPrimary   uint64 `json:"switches_to_primary"`
	SwitchesToSecondary uint64 `json:"switches_to_secondary"`
	Invalidations       uint64 `json:"invalidations"`
	DiagnosticDumps     uint64 `json:"diagnostic_dumps"`
	HooksInstalled      uint64 `json:"hooks_installed"`
	HooksRemoved        uint64 `json:"hooks_removed"`
	AvgViolationTimeNs  uint64 `json:"avg_violation_time_ns"`
}

// GetMetrics returns current performance metrics
func GetMetrics() Metrics {
	violations := atomic.LoadUint64(&violationCount)

	var avgViolation uint64
	if violations > 0 {
		avgViolation = atomic.LoadUint64(&totalViolationTime) / violations
	}

	return Metrics{
		ViolationsHandled:   violations,
		Misconfigurations:   atomic.LoadUint64(&misconfigCount),
		SwitchesToPrimary:   atomic.LoadUint64(&switchPrimaryCount),
		SwitchesToSecondary: atomic.LoadUint64(&switchSecondaryCount),
		Invalidations:       atomic.LoadUint64(&invalidationCount),
		DiagnosticDumps:     atomic.LoadUint64(&dumpCount),
		HooksInstalled:      atomic.LoadUint64(&hookInstallCount),
		HooksRemoved:        atomic.LoadUint64(&hookRemoveCount),
		AvgViolationTimeNs:  avgViolation,
	}
}

// ResetMetrics clears all performance metrics
func ResetMetrics() {
	atomic.StoreUint64(&violationCount, 0)
	atomic.StoreUint64(&misconfigCount, 0)
	atomic.StoreUint64(&switchPrimaryCount, 0)
	atomic.StoreUint64(&switchSecondaryCount, 0)
	atomic.StoreUint64(&invalidationCount, 0)
	atomic.StoreUint64(&dumpCount, 0)
	atomic.StoreUint64(&hookInstallCount, 0)
	atomic.StoreUint64(&hookRemoveCount, 0)
	atomic.StoreUint64(&totalViolationTime, 0)
}

// Internal metric recording functions
func recordViolation(duration time.Duration) {
	atomic.AddUint64(&violationCount, 1)
	atomic.AddUint64(&totalViolationTime, uint64(duration.Nanoseconds()))
}

func recordMisconfiguration() {
	atomic.AddUint64(&misconfigCount, 1)
}

func recordSwitch(v View) {
	if v == Secondary {
		atomic.AddUint64(&switchSecondaryCount, 1)
	} else {
		atomic.AddUint64(&switchPrimaryCount, 1)
	}
	atomic.AddUint64(&invalidationCount, 1)
}

func recordDump() {
	atomic.AddUint64(&dumpCount, 1)
}

func recordHookInstall() {
	atomic.AddUint64(&hookInstallCount, 1)
}

func recordHookRemove() {
	atomic.AddUint64(&hookRemoveCount, 1)
}
