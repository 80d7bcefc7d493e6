package ept

import "fmt"

// Package error codes carried by EPTError.
const (
	EPT_SUCCESS      uint32 = 0x00000000
	EPT_ERROR        uint32 = 0xEB700001
	EPT_BAD_ARGUMENT uint32 = 0xEB700002
	EPT_NO_RESOURCES uint32 = 0xEB700003
	EPT_OUT_OF_RANGE uint32 = 0xEB700004
	EPT_NOT_MAPPED   uint32 = 0xEB700005
	EPT_NOT_LARGE    uint32 = 0xEB700006
	EPT_NOT_SPLIT    uint32 = 0xEB700007
	EPT_NO_HOOK      uint32 = 0xEB700008
)

// EPTError wraps a package error code.
type EPTError struct {
	Code    uint32
	message string // Optional custom message for specific errors
}

func (e EPTError) Error() string {
	if e.message != "" {
		return e.message
	}

	switch e.Code {
	case EPT_SUCCESS:
		return "ept: success"
	case EPT_ERROR:
		return "ept: general error (EPT_ERROR) - check hierarchy and registry state"
	case EPT_BAD_ARGUMENT:
		return "ept: invalid argument (EPT_BAD_ARGUMENT) - check address alignment and parameter values"
	case EPT_NO_RESOURCES:
		return "ept: insufficient resources (EPT_NO_RESOURCES) - arena capacity exceeded"
	case EPT_OUT_OF_RANGE:
		return "ept: index out of range (EPT_OUT_OF_RANGE) - handle does not name an allocated node or record"
	case EPT_NOT_MAPPED:
		return "ept: address not mapped (EPT_NOT_MAPPED) - walk found no present entry"
	case EPT_NOT_LARGE:
		return "ept: mapping is not a large page (EPT_NOT_LARGE) - page already split or absent"
	case EPT_NOT_SPLIT:
		return "ept: mapping is not split (EPT_NOT_SPLIT) - no 4 KiB table covers this page"
	case EPT_NO_HOOK:
		return "ept: no hook installed (EPT_NO_HOOK) - registry cursor is zero"
	default:
		return fmt.Sprintf("ept: unknown error code 0x%08x", e.Code)
	}
}

// Common specific errors for API consumers
var (
	ErrNoHookInstalled = &EPTError{Code: EPT_NO_HOOK}
	ErrNotMapped       = &EPTError{Code: EPT_NOT_MAPPED}
	ErrNotLarge        = &EPTError{Code: EPT_NOT_LARGE}
	ErrNotSplit        = &EPTError{Code: EPT_NOT_SPLIT}
	ErrArenaFull       = &EPTError{Code: EPT_NO_RESOURCES, message: "ept: arena full - no page-table nodes left"}
	ErrOutOfRange      = &EPTError{Code: EPT_OUT_OF_RANGE}
	ErrUnaligned       = &EPTError{Code: EPT_BAD_ARGUMENT, message: "ept: address not page-aligned"}
	ErrHookExists      = &EPTError{Code: EPT_ERROR, message: "ept: page already hooked"}
)
