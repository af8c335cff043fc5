package identity

import "testing"

func TestIsExpired(t *testing.T) {
	cases := []struct {
		name    string
		expires string
		want    bool
	}{
		{"empty means not configured", "", false},
		{"future expiry", "2999-01-01T00:00:00Z", false},
		{"past expiry", "2000-01-01T00:00:00Z", true},
		{"unparseable fails closed", "not-a-date", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := &Identity{ExpiresAt: tc.expires}
			if got := id.IsExpired(); got != tc.want {
				t.Fatalf("IsExpired() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNeedsRenewal(t *testing.T) {
	id := &Identity{
		IssuedAt:  "2000-01-01T00:00:00Z",
		ExpiresAt: "2000-01-02T00:00:00Z",
	}
	if !id.NeedsRenewal() {
		t.Fatal("expected renewal needed for a long-expired window")
	}

	id2 := &Identity{}
	if id2.NeedsRenewal() {
		t.Fatal("expected no renewal decision without issued/expiry timestamps")
	}
}

func TestParseCertificateNilWhenUnconfigured(t *testing.T) {
	id := &Identity{}
	cert, err := id.ParseCertificate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cert != nil {
		t.Fatal("expected nil certificate for unconfigured identity")
	}
}
