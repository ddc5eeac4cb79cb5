package phone

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer("")

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already e164", "+593987654321", "+593987654321"},
		{"bare national with trunk zero", "0987654321", "+593987654321"},
		{"bare national without trunk zero", "987654321", "+593987654321"},
		{"whatsapp jid digits", "593987654321", "+593987654321"},
		{"formatted", "+593 (98) 765-4321", "+593987654321"},
		{"foreign number keeps plus", "+14155552671", "+14155552671"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := n.Normalize(tc.in)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := NewNormalizer("+593")

	for _, in := range []string{"", "   ", "abc", "12"} {
		if _, err := n.Normalize(in); err == nil {
			t.Errorf("Normalize(%q) expected error, got nil", in)
		}
	}
}

func TestNormalizeCustomPrefix(t *testing.T) {
	n := NewNormalizer("52")
	got, err := n.Normalize("5512345678")
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if got != "+525512345678" {
		t.Errorf("Normalize = %q, want +525512345678", got)
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"+593987654321", "+593*******21"},
		{"+5939", "+5939"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Mask(tc.in); got != tc.want {
			t.Errorf("Mask(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
