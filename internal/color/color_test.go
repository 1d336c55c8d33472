package color

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		isDarkMode bool
		expected   bool
	}{
		{"set dark mode", true, true},
		{"set light mode", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Initialize(tt.isDarkMode)
			if lipgloss.HasDarkBackground() != tt.expected {
				t.Errorf("lipgloss.HasDarkBackground() got %v, want %v after Initialize(%v)", lipgloss.HasDarkBackground(), tt.expected, tt.isDarkMode)
			}
		})
	}

}

func TestVerdict(t *testing.T) {
	if got := Verdict("PASS"); !strings.Contains(got, IconPass+" PASS") {
		t.Errorf("Verdict(PASS) = %q, want it to contain %q", got, IconPass+" PASS")
	}
	if got := Verdict("FAIL"); !strings.Contains(got, IconFail+" FAIL") {
		t.Errorf("Verdict(FAIL) = %q, want it to contain %q", got, IconFail+" FAIL")
	}
} 