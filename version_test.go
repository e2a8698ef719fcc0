package agentd

import "testing"

func TestSupportsDirectTools(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"", true},
		{"0.3.0", true},
		{"v0.3.0", true},
		{"0.4.2", true},
		{"1.0.0", true},
		{"0.2.9", false},
		{"v0.1.0", false},
		{"0.2.0-dev-abc123", true},
		{"garbage", true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got := supportsDirectTools(tt.version)
			if got != tt.want {
				t.Errorf("supportsDirectTools(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}
