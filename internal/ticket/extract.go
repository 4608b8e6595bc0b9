package ticket

import (
	"fmt"
	"regexp"
	"strings"

	"jml/internal/domain"
)

// EmployeeIDPrefix marks a value that is a numeric employee id rather
// than an email. The identity resolver looks these up in the directory.
const EmployeeIDPrefix = "LOOKUP_EMPLOYEE_ID:"

var (
	emailScanRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	digitsRe    = regexp.MustCompile(`^[0-9]+$`)
	usernameRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._\-]*$`)
)

// FirstEmail returns the first email-shaped token in text, or "".
func FirstEmail(text string) string {
	return strings.ToLower(emailScanRe.FindString(text))
}

// EmployeeIDMarker formats a numeric employee id for later lookup.
func EmployeeIDMarker(id string) string { return EmployeeIDPrefix + id }

// EmployeeIDFromMarker extracts the id from a marker value.
func EmployeeIDFromMarker(s string) (string, bool) {
	if strings.HasPrefix(s, EmployeeIDPrefix) {
		return strings.TrimPrefix(s, EmployeeIDPrefix), true
	}
	return "", false
}

// NormalizeUserValue turns whatever a ticket field holds into either an
// email, an employee-id marker, or "" when nothing usable is present.
// Bare usernames are synthesized into addresses on the org domain.
func NormalizeUserValue(value, orgDomain string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if domain.ValidEmail(v) {
		return strings.ToLower(v)
	}
	if e := FirstEmail(v); e != "" {
		return e
	}
	if digitsRe.MatchString(v) {
		return EmployeeIDMarker(v)
	}
	if orgDomain != "" && usernameRe.MatchString(v) {
		return strings.ToLower(v) + "@" + orgDomain
	}
	return ""
}

// Parse extracts the fields the resolver needs from a raw ticket
// payload. Structured custom fields win over free-text scanning.
func Parse(raw Raw, orgDomain string) domain.Ticket {
	t := domain.Ticket{
		ID:           stringField(raw, "id"),
		Subject:      stringField(raw, "name"),
		Body:         stringField(raw, "description"),
		State:        stringField(raw, "state"),
		CustomFields: map[string]string{},
	}
	if item, ok := raw["catalog_item"].(map[string]any); ok {
		t.CatalogItem, _ = item["name"].(string)
	}

	fields, _ := raw["custom_fields_values"].([]any)
	for _, f := range fields {
		field, ok := f.(map[string]any)
		if !ok {
			continue
		}
		name, _ := field["name"].(string)
		value := customFieldValue(field)
		if name == "" || value == "" {
			continue
		}
		t.CustomFields[name] = value
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "manager") || strings.Contains(lower, "supervisor"):
			if t.ManagerEmail == "" {
				t.ManagerEmail = NormalizeUserValue(value, orgDomain)
			}
		case strings.Contains(lower, "employee") || strings.Contains(lower, "user") || strings.Contains(lower, "terminat"):
			if t.UserEmail == "" {
				t.UserEmail = NormalizeUserValue(value, orgDomain)
			}
		}
	}

	if t.UserEmail == "" {
		t.UserEmail = FirstEmail(t.Body)
	}
	return t
}

// customFieldValue reads a custom field's value, preferring a nested
// user object's email when present.
func customFieldValue(field map[string]any) string {
	if user, ok := field["user"].(map[string]any); ok {
		if email, _ := user["email"].(string); email != "" {
			return email
		}
		if name, _ := user["name"].(string); name != "" {
			return name
		}
	}
	switch v := field["value"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case map[string]any:
		if email, _ := v["email"].(string); email != "" {
			return email
		}
		if name, _ := v["name"].(string); name != "" {
			return name
		}
	}
	return ""
}

func stringField(raw Raw, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
