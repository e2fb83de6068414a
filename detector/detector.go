package detector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Result is the outcome of classifying one payload.
type Result struct {
	Matched  bool
	Category Category
	// Pattern is the signature source that matched, empty when Matched is false.
	Pattern string
}

// DefaultCredentialFields are JSON keys that mark a payload as a credential form.
var DefaultCredentialFields = []string{"username", "password", "email", "currentPassword", "newPassword"}

type config struct {
	signatures       map[Category][]string
	scanSuspicious   bool
	credentialFields []string
}

// Option customizes a Detector.
type Option func(*config)

// WithSignatures replaces the signature list of one category.
func WithSignatures(c Category, patterns ...string) Option {
	return func(cfg *config) {
		cfg.signatures[c] = append([]string(nil), patterns...)
	}
}

// WithExtraSignatures appends signatures to a category after the built-in ones.
func WithExtraSignatures(c Category, patterns ...string) Option {
	return func(cfg *config) {
		cfg.signatures[c] = append(cfg.signatures[c], patterns...)
	}
}

// WithSuspiciousScan adds the generic-suspicious category to the end of the
// classification order. It is off by default because its keywords are common in
// legitimate traffic.
func WithSuspiciousScan(enabled bool) Option {
	return func(cfg *config) {
		cfg.scanSuspicious = enabled
	}
}

// WithCredentialFields overrides the field names that trigger the
// information-disclosure carve-out.
func WithCredentialFields(fields ...string) Option {
	return func(cfg *config) {
		cfg.credentialFields = append([]string(nil), fields...)
	}
}

// Detector matches payloads against compiled signature lists. A Detector is
// immutable after New and safe for concurrent use.
type Detector struct {
	signatures       map[Category][]*regexp.Regexp
	order            []Category
	credentialFields map[string]struct{}
}

// New compiles the signature table. It fails when a supplied pattern does not compile
// or names an unknown category.
func New(opts ...Option) (*Detector, error) {
	cfg := config{
		signatures:       make(map[Category][]string, len(defaultSignatures)),
		credentialFields: DefaultCredentialFields,
	}
	for c, patterns := range defaultSignatures {
		cfg.signatures[c] = append([]string(nil), patterns...)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	d := &Detector{
		signatures:       make(map[Category][]*regexp.Regexp, len(cfg.signatures)),
		credentialFields: make(map[string]struct{}, len(cfg.credentialFields)),
	}
	for c, patterns := range cfg.signatures {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", c)
		}
		compiled, err := compileSignatures(c, patterns)
		if err != nil {
			return nil, err
		}
		d.signatures[c] = compiled
	}
	for _, f := range cfg.credentialFields {
		d.credentialFields[f] = struct{}{}
	}

	d.order = append(d.order, Priority...)
	if cfg.scanSuspicious {
		d.order = append(d.order, CategorySuspicious)
	}
	return d, nil
}

var defaultDetector = mustDefault()

func mustDefault() *Detector {
	d, err := New()
	if err != nil {
		panic(err)
	}
	return d
}

// Default returns the shared detector built from the built-in signatures.
func Default() *Detector {
	return defaultDetector
}

// Classify runs the default detector over payload.
func Classify(payload string) Result {
	return defaultDetector.Classify(payload)
}

// Classify reports the highest-priority category whose signatures match payload.
// Evaluation stops at the first matching category.
func (d *Detector) Classify(payload string) Result {
	if d == nil || strings.TrimSpace(payload) == "" {
		return Result{}
	}

	var (
		values      string
		valuesReady bool
		credential  bool
	)
	for _, c := range d.order {
		target := payload
		if c == CategoryInfoDisclosure {
			if !valuesReady {
				values, credential = d.credentialValues(payload)
				valuesReady = true
			}
			if credential {
				target = values
			}
		}
		if pattern, ok := d.match(c, target); ok {
			return Result{Matched: true, Category: c, Pattern: pattern}
		}
	}
	return Result{}
}

// Match reports whether payload matches any signature of c. It applies no carve-outs
// and no priority ordering.
func (d *Detector) Match(c Category, payload string) bool {
	if d == nil || payload == "" {
		return false
	}
	_, ok := d.match(c, payload)
	return ok
}

func (d *Detector) match(c Category, payload string) (string, bool) {
	if payload == "" {
		return "", false
	}
	for _, re := range d.signatures[c] {
		if re.MatchString(payload) {
			return re.String(), true
		}
	}
	return "", false
}

// credentialValues returns the leaf values of a JSON object payload joined by spaces
// when the object carries at least one credential field.
func (d *Detector) credentialValues(payload string) (string, bool) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return "", false
	}

	found := false
	for k := range obj {
		if _, ok := d.credentialFields[k]; ok {
			found = true
			break
		}
	}
	if !found {
		return "", false
	}

	parts := make([]string, 0, len(obj))
	collectValues(obj, &parts)
	return strings.Join(parts, " "), true
}

func collectValues(v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for _, inner := range t {
			collectValues(inner, out)
		}
	case []any:
		for _, inner := range t {
			collectValues(inner, out)
		}
	case string:
		*out = append(*out, t)
	case float64:
		*out = append(*out, strconv.FormatFloat(t, 'f', -1, 64))
	case bool:
		*out = append(*out, strconv.FormatBool(t))
	}
}
