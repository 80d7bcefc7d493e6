package ept

import "fmt"

// ViolationQualification is the decoded exit qualification of an EPT
// violation (Intel SDM Vol. 3C, Table 28-7). Bits 2:0 describe the access
// that faulted, bits 5:3 the permissions the active view granted.
type ViolationQualification struct {
	DataRead         bool // bit 0
	DataWrite        bool // bit 1
	InstructionFetch bool // bit 2
	PageReadable     bool // bit 3
	PageWritable     bool // bit 4
	PageExecutable   bool // bit 5
	LinearValid      bool // bit 7
	FinalTranslation bool // bit 8
}

// ParseViolationQualification decodes the raw exit-qualification value.
func ParseViolationQualification(q uint64) ViolationQualification {
	return ViolationQualification{
		DataRead:         q&(1<<0) != 0,
		DataWrite:        q&(1<<1) != 0,
		InstructionFetch: q&(1<<2) != 0,
		PageReadable:     q&(1<<3) != 0,
		PageWritable:     q&(1<<4) != 0,
		PageExecutable:   q&(1<<5) != 0,
		LinearValid:      q&(1<<7) != 0,
		FinalTranslation: q&(1<<8) != 0,
	}
}

// TargetView classifies the violation. The decision is total: every
// violation is either an instruction fetch or a data access, and each maps
// to exactly one view.
//
// A data access means the guest tried to read or write a page the active
// view maps execute-only; the Primary view maps the original bytes
// readable and writable, so scanners see unpatched content. An instruction
// fetch means the guest tried to execute a page the active view maps
// read/write-only; the Secondary view maps the patched bytes execute-only,
// so the hook actually runs.
func (q ViolationQualification) TargetView() View {
	switch {
	case q.InstructionFetch:
		return Secondary
	default:
		return Primary
	}
}

// AccessType names the faulting access class for logs.
func (q ViolationQualification) AccessType() string {
	switch {
	case q.InstructionFetch:
		return "fetch"
	case q.DataWrite:
		return "write"
	default:
		return "read"
	}
}

func (q ViolationQualification) String() string {
	var page MemPerm
	if q.PageReadable {
		page |= MemRead
	}
	if q.PageWritable {
		page |= MemWrite
	}
	if q.PageExecutable {
		page |= MemExec
	}
	return fmt.Sprintf("access=%s page=%s", q.AccessType(), page)
}
