package detector

// Category names one class of attack signature.
type Category string

const (
	// CategoryNone is reported when nothing matched.
	CategoryNone Category = ""
	// CategorySQLInjection matches SQL injection payloads.
	CategorySQLInjection Category = "sql_injection"
	// CategoryXSS matches script injection.
	CategoryXSS Category = "xss"
	// CategoryCSRF matches cross-site request forgery markup and failed origin checks.
	CategoryCSRF Category = "csrf"
	// CategoryLDAPInjection matches LDAP filter injection.
	CategoryLDAPInjection Category = "ldap_injection"
	// CategoryNoSQLInjection matches document-database operator injection.
	CategoryNoSQLInjection Category = "nosql_injection"
	// CategoryCommandInjection matches shell command chaining.
	CategoryCommandInjection Category = "command_injection"
	// CategoryPathTraversal matches directory traversal sequences.
	CategoryPathTraversal Category = "path_traversal"
	// CategorySSRF matches server-side request forgery targets.
	CategorySSRF Category = "ssrf"
	// CategoryXXE matches XML external entity declarations.
	CategoryXXE Category = "xxe"
	// CategoryInfoDisclosure matches requests for secrets and internal build details.
	CategoryInfoDisclosure Category = "information_disclosure"
	// CategorySuspicious matches generic reconnaissance keywords.
	CategorySuspicious Category = "suspicious_activity"
)

// Priority is the order in which Classify evaluates categories.
var Priority = []Category{
	CategorySQLInjection,
	CategoryXSS,
	CategoryLDAPInjection,
	CategoryNoSQLInjection,
	CategoryCommandInjection,
	CategoryPathTraversal,
	CategorySSRF,
	CategoryXXE,
	CategoryInfoDisclosure,
}

// Categories lists every known category, including those not in Priority.
var Categories = []Category{
	CategorySQLInjection,
	CategoryXSS,
	CategoryCSRF,
	CategoryLDAPInjection,
	CategoryNoSQLInjection,
	CategoryCommandInjection,
	CategoryPathTraversal,
	CategorySSRF,
	CategoryXXE,
	CategoryInfoDisclosure,
	CategorySuspicious,
}

var rejectCodes = map[Category]string{
	CategorySQLInjection:     "SQL_INJECTION_DETECTED",
	CategoryXSS:              "XSS_DETECTED",
	CategoryCSRF:             "CSRF_DETECTED",
	CategoryLDAPInjection:    "LDAP_INJECTION_DETECTED",
	CategoryNoSQLInjection:   "NOSQL_INJECTION_DETECTED",
	CategoryCommandInjection: "COMMAND_INJECTION_DETECTED",
	CategoryPathTraversal:    "PATH_TRAVERSAL_DETECTED",
	CategorySSRF:             "SSRF_DETECTED",
	CategoryXXE:              "XXE_DETECTED",
	CategoryInfoDisclosure:   "INFORMATION_DISCLOSURE_DETECTED",
	CategorySuspicious:       "SUSPICIOUS_ACTIVITY_DETECTED",
}

// Code returns the rejection code reported to clients for c.
func (c Category) Code() string {
	return rejectCodes[c]
}

// EventName returns the audit-facing name of a detection in c, e.g.
// "sql_injection_attempt".
func (c Category) EventName() string {
	switch c {
	case CategoryNone:
		return ""
	case CategorySuspicious:
		return string(c)
	default:
		return string(c) + "_attempt"
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := rejectCodes[c]
	return ok
}

// ParseCategory resolves a category name as written in configuration.
func ParseCategory(name string) (Category, bool) {
	c := Category(name)
	return c, c.Valid()
}
