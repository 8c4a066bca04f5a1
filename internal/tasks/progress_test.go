// file: internal/tasks/progress_test.go
// version: 1.0.0
// guid: de34ce64-1688-4f55-adf7-b47fe25db14c

package tasks

import "testing"

func TestProgressString(t *testing.T) {
	tests := []struct {
		p    Progress
		want string
	}{
		{Progress{}, "0%"},
		{Progress{Transferred: 10, Total: 0}, "0%"},
		{Progress{Transferred: 0, Total: 100}, "0%"},
		{Progress{Transferred: 42, Total: 100}, "42%"},
		{Progress{Transferred: 1, Total: 3}, "33%"},
		{Progress{Transferred: 100, Total: 100}, "100%"},
		{Progress{Transferred: 150, Total: 100}, "100%"},
		{Progress{Transferred: 5, Total: -1}, "0%"},
	}

	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Progress%+v.String() = %q, want %q", tt.p, got, tt.want)
		}
	}
}

func TestProgressDescribe(t *testing.T) {
	tests := []struct {
		p    Progress
		want string
	}{
		{Progress{Transferred: 1024, Total: 2048}, "1,024 / 2,048 bytes"},
		{Progress{Transferred: 1048576, Total: -1}, "1,048,576 bytes"},
		{Progress{}, "0 bytes"},
	}

	for _, tt := range tests {
		if got := tt.p.Describe(); got != tt.want {
			t.Errorf("Progress%+v.Describe() = %q, want %q", tt.p, got, tt.want)
		}
	}
}
