package language

import "testing"

func TestToISO2(t *testing.T) {
	cases := map[string]string{
		"en":        "en",
		"EN":        "en",
		" eng ":     "en",
		"english":   "en",
		"fra":       "fr",
		"fre":       "fr",
		"German":    "de",
		"chi":       "zh",
		"xx":        "xx",
		"klingon":   "",
		"":          "",
		"Norwegian": "no",
	}
	for input, want := range cases {
		if got := ToISO2(input); got != want {
			t.Errorf("ToISO2(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestKnown(t *testing.T) {
	if !Known("ja") || !Known("japanese") || !Known("jpn") {
		t.Fatal("Japanese forms should be known")
	}
	if Known("") || Known("klingon") {
		t.Fatal("unrecognized input should not be known")
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]string{
		"en":      "English",
		"fre":     "French",
		"spanish": "Spanish",
		"":        "Unknown",
		"xx":      "XX",
		"tagalog": "Tagalog",
		"KLINGON": "Klingon",
	}
	for input, want := range cases {
		if got := DisplayName(input); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", input, got, want)
		}
	}
}
