package model

import "testing"

func TestParseEther(t *testing.T) {
	tests := []struct {
		in      string
		wantWei string
		wantErr bool
	}{
		{"1", "1000000000000000000", false},
		{"0.22", "220000000000000000", false},
		{" 1.5 ", "1500000000000000000", false},
		{"0.000000000000000001", "1", false},
		{"0.0000000000000000001", "", true},
		{"-1", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := ParseEther(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEther(%q) = %s, want error", tt.in, FormatWei(got))
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEther(%q) error: %v", tt.in, err)
			continue
		}
		if FormatWei(got) != tt.wantWei {
			t.Errorf("ParseEther(%q) = %s, want %s", tt.in, FormatWei(got), tt.wantWei)
		}
	}
}

func TestFormatEther(t *testing.T) {
	for in, want := range map[string]string{"1": "1", "0.22": "0.22", "100.94": "100.94", "0": "0"} {
		if got := FormatEther(MustParseEther(in)); got != want {
			t.Errorf("FormatEther(%s) = %s, want %s", in, got, want)
		}
	}
	if got := FormatEther(nil); got != "0" {
		t.Errorf("FormatEther(nil) = %s, want 0", got)
	}
}

func TestParseWei(t *testing.T) {
	v, err := ParseWei("333333333333333334")
	if err != nil || v.Uint64() != 333333333333333334 {
		t.Errorf("ParseWei = %v, %v", v, err)
	}
	if v, err := ParseWei(""); err != nil || !v.IsZero() {
		t.Errorf("ParseWei(\"\") = %v, %v, want 0", v, err)
	}
	for _, bad := range []string{"-1", "1.5", "0x10"} {
		if _, err := ParseWei(bad); err == nil {
			t.Errorf("ParseWei(%q) succeeded, want error", bad)
		}
	}
}
