package domain

import "testing"

func testEntities() []Entity {
	return []Entity{
		{
			Key:          "phygrid-uk",
			ProfileID:    19941830,
			SubsidiaryID: 3,
			DisplayName:  "Phygrid Limited",
			Jurisdiction: "UK",
			Currency:     "GBP",
			Aliases:      []string{"Phygrid Ltd"},
			KnownIBANs:   []string{"GB29NWBK60161331926819"},
		},
		{
			Key:          "ombori-ch",
			ProfileID:    47253364,
			SubsidiaryID: 7,
			DisplayName:  "Ombori AG",
			Jurisdiction: "Switzerland",
			Currency:     "CHF",
			Aliases:      []string{"OMBORI AG"},
			KnownIBANs:   []string{"BE82 9678 3109 6568"},
		},
	}
}

func TestNormalizeEntityName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"PHYGRID AB (PUBL)", "phygrid ab publ"},
		{"Phygrid AB Publ", "phygrid ab publ"},
		{"Ombori, Inc.", "ombori inc"},
		{"  Acme   Ltd  ", "acme ltd"},
	}
	for _, tt := range tests {
		if got := NormalizeEntityName(tt.in); got != tt.want {
			t.Errorf("NormalizeEntityName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntityRegistry_ByIBAN(t *testing.T) {
	reg := NewEntityRegistry(testEntities())

	// Spacing differences in the IBAN must not matter.
	e, ok := reg.ByIBAN("BE82967831096568")
	if !ok {
		t.Fatal("expected IBAN lookup to hit")
	}
	if e.DisplayName != "Ombori AG" {
		t.Errorf("entity = %s, want Ombori AG", e.DisplayName)
	}

	if _, ok := reg.ByIBAN("DE00000000000000000000"); ok {
		t.Error("unexpected hit for unknown IBAN")
	}
	if _, ok := reg.ByIBAN(""); ok {
		t.Error("unexpected hit for empty IBAN")
	}
}

func TestEntityRegistry_ByName(t *testing.T) {
	reg := NewEntityRegistry(testEntities())

	for _, name := range []string{"Ombori AG", "OMBORI AG", "ombori ag"} {
		if _, ok := reg.ByName(name); !ok {
			t.Errorf("ByName(%q) missed", name)
		}
	}
	if _, ok := reg.ByName("Unrelated GmbH"); ok {
		t.Error("unexpected hit for unrelated name")
	}
}

func TestEntityRegistry_ContainsEntityName(t *testing.T) {
	reg := NewEntityRegistry(testEntities())

	e, ok := reg.ContainsEntityName("IC settlement Phygrid Limited March")
	if !ok || e.Key != "phygrid-uk" {
		t.Fatalf("ContainsEntityName = %v/%v, want phygrid-uk", e, ok)
	}
	if _, ok := reg.ContainsEntityName("plain vendor invoice"); ok {
		t.Error("unexpected entity hit in plain text")
	}
}
