package util

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"supersecretvalue", "supe...alue"},
		{"abcdef", "ab...ef"},
		{"abc", "a...c"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	masked := MaskSensitiveQuery("next=%2Fadmin&token=abcdef123456")
	if masked == "next=%2Fadmin&token=abcdef123456" {
		t.Fatal("token value not masked")
	}
	if masked[:13] != "next=%2Fadmin" {
		t.Fatalf("benign parameter changed: %q", masked)
	}

	if got := MaskSensitiveQuery("page=2&limit=50"); got != "page=2&limit=50" {
		t.Fatalf("query without secrets changed: %q", got)
	}
	if got := MaskSensitiveQuery(""); got != "" {
		t.Fatalf("empty query changed: %q", got)
	}

	for _, query := range []string{"code=12345678", "password=hunter2000", "api_secret=abcdef123456"} {
		if got := MaskSensitiveQuery(query); got == query {
			t.Fatalf("%q not masked", query)
		}
	}
}
