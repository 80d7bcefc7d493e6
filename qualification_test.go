package ept

import "testing"

func TestParseViolationQualification(t *testing.T) {
	tests := []struct {
		name string
		raw  uint64
		want ViolationQualification
	}{
		{
			name: "read of execute-only page",
			raw:  1<<0 | 1<<5 | 1<<7,
			want: ViolationQualification{DataRead: true, PageExecutable: true, LinearValid: true},
		},
		{
			name: "write of execute-only page",
			raw:  1<<1 | 1<<5,
			want: ViolationQualification{DataWrite: true, PageExecutable: true},
		},
		{
			name: "fetch of read-write page",
			raw:  1<<2 | 1<<3 | 1<<4,
			want: ViolationQualification{InstructionFetch: true, PageReadable: true, PageWritable: true},
		},
		{
			name: "final translation bit",
			raw:  1<<0 | 1<<8,
			want: ViolationQualification{DataRead: true, FinalTranslation: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseViolationQualification(tt.raw); got != tt.want {
				t.Errorf("ParseViolationQualification(0x%x) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestTargetViewByAccessClass(t *testing.T) {
	// Data access resolves to the primary view.
	if got := ParseViolationQualification(1 << 0).TargetView(); got != Primary {
		t.Errorf("data access target = %v, want %v", got, Primary)
	}
	// Instruction fetch resolves to the secondary view.
	if got := ParseViolationQualification(1 << 2).TargetView(); got != Secondary {
		t.Errorf("fetch target = %v, want %v", got, Secondary)
	}
}

// Classification must be total and determined by the fetch bit alone: over
// every combination of the low qualification bits there are exactly two
// outcomes, and flipping anything but bit 2 never changes the target.
func TestTargetViewTotality(t *testing.T) {
	for raw := uint64(0); raw < 1<<9; raw++ {
		q := ParseViolationQualification(raw)
		got := q.TargetView()
		if got != Primary && got != Secondary {
			t.Fatalf("qualification 0x%x produced view %v", raw, got)
		}

		want := Primary
		if raw&(1<<2) != 0 {
			want = Secondary
		}
		if got != want {
			t.Errorf("qualification 0x%x target = %v, want %v", raw, got, want)
		}
	}
}

func TestQualificationString(t *testing.T) {
	q := ParseViolationQualification(1<<2 | 1<<3 | 1<<4)
	if got := q.String(); got != "access=fetch page=rw-" {
		t.Errorf("String() = %q", got)
	}

	q = ParseViolationQualification(1<<1 | 1<<5)
	if got := q.String(); got != "access=write page=--x" {
		t.Errorf("String() = %q", got)
	}
}
