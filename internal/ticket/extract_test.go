package ticket

import "testing"

func TestNormalizeUserValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"marisa@example.com", "marisa@example.com"},
		{"  Marisa@Example.COM ", "marisa@example.com"},
		{"Please offboard marisa@example.com today", "marisa@example.com"},
		{"88123", "LOOKUP_EMPLOYEE_ID:88123"},
		{"mjones", "mjones@example.com"},
		{"m.jones-x", "m.jones-x@example.com"},
		{"Marisa Jones", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeUserValue(tc.in, "example.com"); got != tc.want {
			t.Fatalf("NormalizeUserValue(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeUserValueNoDomain(t *testing.T) {
	if got := NormalizeUserValue("mjones", ""); got != "" {
		t.Fatalf("expected no synthesis without org domain, got %q", got)
	}
}

func TestEmployeeIDMarkerRoundTrip(t *testing.T) {
	m := EmployeeIDMarker("64570")
	id, ok := EmployeeIDFromMarker(m)
	if !ok || id != "64570" {
		t.Fatalf("marker round trip failed: %q %v", id, ok)
	}
	if _, ok := EmployeeIDFromMarker("marisa@example.com"); ok {
		t.Fatalf("email should not parse as marker")
	}
}

func TestParseStructuredFields(t *testing.T) {
	raw := Raw{
		"id":          float64(64570),
		"name":        "Termination - Marisa Jones",
		"description": "Please process.",
		"state":       "New",
		"catalog_item": map[string]any{
			"name": "Employee Termination",
		},
		"custom_fields_values": []any{
			map[string]any{
				"name": "Employee to Terminate",
				"user": map[string]any{"email": "marisa@example.com", "name": "Marisa Jones"},
			},
			map[string]any{
				"name":  "Manager",
				"value": "boss@example.com",
			},
		},
	}
	tk := Parse(raw, "example.com")
	if tk.ID != "64570" {
		t.Fatalf("id: got %q", tk.ID)
	}
	if tk.UserEmail != "marisa@example.com" {
		t.Fatalf("user email: got %q", tk.UserEmail)
	}
	if tk.ManagerEmail != "boss@example.com" {
		t.Fatalf("manager email: got %q", tk.ManagerEmail)
	}
	if tk.CatalogItem != "Employee Termination" {
		t.Fatalf("catalog item: got %q", tk.CatalogItem)
	}
}

func TestParseFallsBackToBodyScan(t *testing.T) {
	raw := Raw{
		"id":          "101",
		"name":        "Offboarding request",
		"description": "User leaving: jdoe@example.com effective Friday",
	}
	tk := Parse(raw, "example.com")
	if tk.UserEmail != "jdoe@example.com" {
		t.Fatalf("expected body-scan fallback, got %q", tk.UserEmail)
	}
}

func TestParseEmployeeIDField(t *testing.T) {
	raw := Raw{
		"id":   "102",
		"name": "Termination - 88123",
		"custom_fields_values": []any{
			map[string]any{"name": "Employee ID", "value": float64(88123)},
		},
	}
	tk := Parse(raw, "example.com")
	if tk.UserEmail != "LOOKUP_EMPLOYEE_ID:88123" {
		t.Fatalf("expected employee-id marker, got %q", tk.UserEmail)
	}
}
