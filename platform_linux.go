//go:build linux

package ept

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Supported returns true if this host could drive the engine against real
// hardware: KVM reachable and the CPU advertising VMX with EPT.
func Supported() (bool, error) {
	if err := unix.Access("/dev/kvm", unix.R_OK|unix.W_OK); err != nil {
		return false, fmt.Errorf("ept: /dev/kvm not accessible: %w", err)
	}

	info, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return false, fmt.Errorf("ept: failed to read cpuinfo: %w", err)
	}
	for _, line := range strings.Split(string(info), "\n") {
		if !strings.HasPrefix(line, "flags") {
			continue
		}
		fields := strings.Fields(line)
		var vmx, ept bool
		for _, f := range fields {
			switch f {
			case "vmx":
				vmx = true
			case "ept":
				ept = true
			}
		}
		return vmx && ept, nil
	}
	return false, nil
}
