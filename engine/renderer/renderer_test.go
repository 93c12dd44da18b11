package renderer

import "testing"

func TestParsePresentMode(t *testing.T) {
	tests := []struct {
		in      string
		want    PresentMode
		wantErr bool
	}{
		{"", PresentModeVSync, false},
		{"vsync", PresentModeVSync, false},
		{"uncapped", PresentModeUncapped, false},
		{"mailbox", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePresentMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParsePresentMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("ParsePresentMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
