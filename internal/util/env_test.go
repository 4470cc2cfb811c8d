package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{" on ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("SERVICETEXT_TEST_BOOL", c.value)
		if got := ParseBoolEnv("SERVICETEXT_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("SERVICETEXT_TEST_INT", "42")
	if got := ParseIntEnv("SERVICETEXT_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	t.Setenv("SERVICETEXT_TEST_INT", "not a number")
	if got := ParseIntEnv("SERVICETEXT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}

	t.Setenv("SERVICETEXT_TEST_INT", "")
	if got := ParseIntEnv("SERVICETEXT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7 for empty value, got %d", got)
	}
}
