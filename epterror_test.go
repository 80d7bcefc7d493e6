package ept

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEPTError(t *testing.T) {
	tests := []struct {
		name     string
		code     uint32
		contains string
	}{
		{"EPT_SUCCESS", EPT_SUCCESS, "success"},
		{"EPT_ERROR", EPT_ERROR, "EPT_ERROR"},
		{"EPT_BAD_ARGUMENT", EPT_BAD_ARGUMENT, "EPT_BAD_ARGUMENT"},
		{"EPT_NO_RESOURCES", EPT_NO_RESOURCES, "EPT_NO_RESOURCES"},
		{"EPT_OUT_OF_RANGE", EPT_OUT_OF_RANGE, "EPT_OUT_OF_RANGE"},
		{"EPT_NOT_MAPPED", EPT_NOT_MAPPED, "EPT_NOT_MAPPED"},
		{"EPT_NOT_LARGE", EPT_NOT_LARGE, "EPT_NOT_LARGE"},
		{"EPT_NOT_SPLIT", EPT_NOT_SPLIT, "EPT_NOT_SPLIT"},
		{"EPT_NO_HOOK", EPT_NO_HOOK, "EPT_NO_HOOK"},
		{"unknown", 0x12345678, "unknown error code 0x12345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EPTError{Code: tt.code}
			if got := err.Error(); !strings.Contains(got, tt.contains) {
				t.Errorf("EPTError{Code: 0x%08x}.Error() = %q, want substring %q", tt.code, got, tt.contains)
			}
		})
	}

	t.Run("distinct codes produce distinct messages", func(t *testing.T) {
		seen := make(map[string]uint32)
		for _, tt := range tests {
			msg := EPTError{Code: tt.code}.Error()
			if prev, dup := seen[msg]; dup {
				t.Errorf("codes 0x%08x and 0x%08x share message %q", prev, tt.code, msg)
			}
			seen[msg] = tt.code
		}
	})
}

func TestSentinelWrapping(t *testing.T) {
	wrapped := fmt.Errorf("failed to split primary view for 0x401000: %w", ErrNotLarge)
	if !errors.Is(wrapped, ErrNotLarge) {
		t.Error("errors.Is lost the sentinel through wrapping")
	}

	var eptErr *EPTError
	if !errors.As(wrapped, &eptErr) {
		t.Fatal("errors.As failed to recover *EPTError")
	}
	if eptErr.Code != EPT_NOT_LARGE {
		t.Errorf("recovered code = 0x%08x, want EPT_NOT_LARGE", eptErr.Code)
	}
}
