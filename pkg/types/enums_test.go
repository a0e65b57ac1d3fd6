package types

import "testing"

func TestInterfaceID(t *testing.T) {
	tests := []struct {
		id   InterfaceID
		want string
	}{
		{InterfaceAny, "any"},
		{InterfaceID(1), "if1"},
		{InterfaceID(42), "if42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.id.String(); got != tt.want {
				t.Errorf("InterfaceID(%d).String() = %q, want %q", uint32(tt.id), got, tt.want)
			}
		})
	}

	if !InterfaceAny.Matches(3) || !InterfaceID(3).Matches(InterfaceAny) {
		t.Error("any should match every interface")
	}
	if InterfaceID(1).Matches(2) {
		t.Error("distinct interfaces should not match")
	}
}

func TestRecordPolicy(t *testing.T) {
	tests := []struct {
		p      RecordPolicy
		want   string
		unique bool
	}{
		{PolicyShared, "shared", false},
		{PolicyAdvisory, "advisory", false},
		{PolicyUnique, "unique", true},
		{PolicyKnownUnique, "known-unique", true},
		{RecordPolicy(99), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("RecordPolicy(%d).String() = %q, want %q", tt.p, got, tt.want)
			}
			if got := tt.p.IsUnique(); got != tt.unique {
				t.Errorf("RecordPolicy(%d).IsUnique() = %v, want %v", tt.p, got, tt.unique)
			}
		})
	}
}

func TestRecordState(t *testing.T) {
	tests := []struct {
		s      RecordState
		want   string
		active bool
	}{
		{StateUnregistered, "unregistered", false},
		{StateShared, "shared", true},
		{StateAdvisory, "advisory", true},
		{StateUnique, "probing", false},
		{StateVerified, "verified", true},
		{StateKnownUnique, "known-unique", true},
		{StateDeregistering, "deregistering", false},
		{RecordState(99), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("RecordState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
			if got := tt.s.Active(); got != tt.active {
				t.Errorf("RecordState(%d).Active() = %v, want %v", tt.s, got, tt.active)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		s        Status
		want     string
		err      error
		terminal bool
	}{
		{StatusVerified, "verified", nil, false},
		{StatusKnownUnique, "known-unique", nil, false},
		{StatusNameConflict, "name-conflict", ErrNameConflict, false},
		{StatusMemFree, "mem-free", nil, true},
		{Status(0), "unknown", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
			if got := tt.s.Err(); got != tt.err {
				t.Errorf("Status(%d).Err() = %v, want %v", tt.s, got, tt.err)
			}
			if got := tt.s.Terminal(); got != tt.terminal {
				t.Errorf("Status(%d).Terminal() = %v, want %v", tt.s, got, tt.terminal)
			}
		})
	}

	if QuestionEnumerate.String() != "enumerate" || QuestionExistence.String() != "existence" {
		t.Error("unexpected QuestionKind names")
	}
}
