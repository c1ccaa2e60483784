package provisioning

import (
	"errors"
	"testing"

	"tenant-service/internal/model"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Rous Boutique", "rous-boutique"},
		{"  --Rous   Boutique!!  ", "rous-boutique"},
		{"Café Olé", "cafe-ole"},
		{"ACME_Corp 2000", "acme-corp-2000"},
		{"São Paulo Ltda.", "sao-paulo-ltda"},
		{"a", "a"},
	}
	for _, tc := range cases {
		got, err := Slugify(tc.name)
		if err != nil {
			t.Errorf("Slugify(%q) error: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSlugifyRejectsEmpty(t *testing.T) {
	for _, name := range []string{"", "   ", "!!!", "---", "日本"} {
		if _, err := Slugify(name); !errors.Is(err, model.ErrValidation) {
			t.Errorf("Slugify(%q) = %v, want ErrValidation", name, err)
		}
	}
}

func TestSlugifyNeverProducesSentinel(t *testing.T) {
	got, err := Slugify(model.OnboardingTenant)
	if err != nil {
		t.Fatalf("Slugify: %v", err)
	}
	if got == model.OnboardingTenant {
		t.Fatalf("slug %q equals the onboarding sentinel", got)
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("rous-boutique", 4)
	want := []string{"rous-boutique", "rous-boutique-2", "rous-boutique-3", "rous-boutique-4"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %q, want %q", i, got[i], want[i])
		}
	}

	seen := map[string]bool{}
	for _, c := range Candidates("acme", 50) {
		if seen[c] {
			t.Fatalf("duplicate candidate %q", c)
		}
		seen[c] = true
	}
}

func TestCandidatesSkipReserved(t *testing.T) {
	got := Candidates("dashboard", 2)
	if got[0] != "dashboard-2" || got[1] != "dashboard-3" {
		t.Fatalf("Candidates(dashboard) = %v", got)
	}
	if len(Candidates("acme", 0)) != 0 {
		t.Fatal("expected no candidates for a zero limit")
	}
}
