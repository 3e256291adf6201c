package util

import (
	"os"
	"testing"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{" true ", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		if c.value == "" {
			os.Unsetenv("AGENDAZAP_TEST_BOOL")
		} else {
			os.Setenv("AGENDAZAP_TEST_BOOL", c.value)
		}
		if got := ParseBoolEnv("AGENDAZAP_TEST_BOOL", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
	os.Unsetenv("AGENDAZAP_TEST_BOOL")
}
