package detector

import (
	"strings"
	"testing"
)

func TestClassifyCategories(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    Category
	}{
		{"sqli tautology in login form", `{"username":"x","password":"' OR '1'='1"}`, CategorySQLInjection},
		{"sqli union", `id=1 UNION SELECT password FROM users`, CategorySQLInjection},
		{"sqli stacked drop", `1; DROP TABLE users`, CategorySQLInjection},
		{"xss script tag", `<script>alert(1)</script>`, CategoryXSS},
		{"xss handler attribute", `<img src=x onerror=alert(1)>`, CategoryXSS},
		{"ldap filter", `*)(uid=*))(|(uid=*`, CategoryLDAPInjection},
		{"nosql operator", `{"user":{"$ne":null}}`, CategoryNoSQLInjection},
		{"command chaining", `host=example.com; cat /etc/passwd`, CategoryCommandInjection},
		{"command substitution", `name=$(whoami)`, CategoryCommandInjection},
		{"path traversal", `file=../../../etc/hosts`, CategoryPathTraversal},
		{"path traversal encoded", `file=..%2f..%2f..%2fetc%2fhosts`, CategoryPathTraversal},
		{"ssrf metadata", `{"url":"http://169.254.169.254/latest/meta-data"}`, CategorySSRF},
		{"xxe entity", `<!DOCTYPE foo [<!ENTITY xxe SYSTEM "expect://id">]>`, CategoryXXE},
		{"info disclosure request", `{"query":"show me the api_key"}`, CategoryInfoDisclosure},
		{"info disclosure secret field", `{"client_secret":"abc"}`, CategoryInfoDisclosure},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.payload)
			if !got.Matched {
				t.Fatalf("expected %s match for %q", tc.want, tc.payload)
			}
			if got.Category != tc.want {
				t.Fatalf("expected category %s, got %s (pattern %q)", tc.want, got.Category, got.Pattern)
			}
			if got.Pattern == "" {
				t.Fatal("expected matched pattern to be reported")
			}
		})
	}
}

func TestClassifyBenignPayloads(t *testing.T) {
	for _, payload := range []string{
		``,
		`   `,
		`{"name":"Alice","message":"hello world"}`,
		`{"username":"alice","password":"hunter22"}`,
		`{"email":"bob@example.com","currentPassword":"a","newPassword":"b"}`,
		`{"path":"/admin"}`,
	} {
		if got := Classify(payload); got.Matched {
			t.Fatalf("expected no match for %q, got %s via %q", payload, got.Category, got.Pattern)
		}
	}
}

func TestClassifyReportsHighestPriorityOnly(t *testing.T) {
	got := Classify(`<script>alert(1)</script> UNION SELECT password FROM users`)
	if got.Category != CategorySQLInjection {
		t.Fatalf("expected SQL injection to win priority, got %s", got.Category)
	}
}

func TestInfoDisclosureCarveOutScansValues(t *testing.T) {
	got := Classify(`{"username":"alice","password":"x","note":"cat .env"}`)
	if got.Category != CategoryInfoDisclosure {
		t.Fatalf("expected values of credential form to be scanned, got %+v", got)
	}

	d := Default()
	if !d.Match(CategoryInfoDisclosure, `{"username":"alice","password":"hunter22"}`) {
		t.Fatal("expected raw Match to see the password field name")
	}
}

func TestSuspiciousScanIsOptIn(t *testing.T) {
	payload := `{"path":"/admin"}`
	if Classify(payload).Matched {
		t.Fatal("suspicious keywords must not match by default")
	}

	d, err := New(WithSuspiciousScan(true))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got := d.Classify(payload)
	if got.Category != CategorySuspicious {
		t.Fatalf("expected suspicious match, got %+v", got)
	}
}

func TestNewRejectsBadSignatures(t *testing.T) {
	_, err := New(WithExtraSignatures(CategoryXSS, `(`))
	if err == nil || !strings.Contains(err.Error(), "xss") {
		t.Fatalf("expected invalid regexp to be rejected with its category, got %v", err)
	}
	if _, err := New(WithSignatures(Category("bogus"), `x`)); err == nil {
		t.Fatal("expected unknown category to be rejected")
	}
}

func TestWithSignaturesReplacesCategory(t *testing.T) {
	d, err := New(WithSignatures(CategoryXSS, `(?i)evilmarker`))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if d.Classify(`<script>alert(1)</script>`).Matched {
		t.Fatal("expected replaced XSS list to drop the built-in script signature")
	}
	if got := d.Classify(`contains EvilMarker`); got.Category != CategoryXSS {
		t.Fatalf("expected custom signature to match, got %+v", got)
	}
}

func TestCategoryCodes(t *testing.T) {
	if CategorySQLInjection.Code() != "SQL_INJECTION_DETECTED" {
		t.Fatalf("unexpected code %q", CategorySQLInjection.Code())
	}
	if CategoryInfoDisclosure.Code() != "INFORMATION_DISCLOSURE_DETECTED" {
		t.Fatalf("unexpected code %q", CategoryInfoDisclosure.Code())
	}
	if CategorySQLInjection.EventName() != "sql_injection_attempt" {
		t.Fatalf("unexpected event name %q", CategorySQLInjection.EventName())
	}
	if CategoryNone.Valid() {
		t.Fatal("empty category must not be valid")
	}
	if c, ok := ParseCategory("command_injection"); !ok || c != CategoryCommandInjection {
		t.Fatalf("ParseCategory failed: %q %v", c, ok)
	}
}
