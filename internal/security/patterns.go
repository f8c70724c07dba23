package security

import "regexp"

// signature is one named regex within a pattern family.
type signature struct {
	name  string
	regex *regexp.Regexp
}

// patternFamily groups the signatures for one threat label. One flag per
// family per request: the first matching signature wins and the rest of the
// family is skipped.
type patternFamily struct {
	threat     string
	eventType  string
	severity   Severity
	signatures []signature
}

// threatFamilies is evaluated in order; the resulting threat set is
// deduplicated by construction.
var threatFamilies = []patternFamily{
	{
		threat:    ThreatSQLInjection,
		eventType: EventSQLInjection,
		severity:  SeverityCritical,
		signatures: []signature{
			{"union select", regexp.MustCompile(`(?i)union\s+(all\s+)?select`)},
			{"quoted or/and", regexp.MustCompile(`(?i)'\s*(or|and)\s+'?[\w\s]*'?\s*=`)},
			{"numeric tautology", regexp.MustCompile(`(?i)\b(or|and)\b\s+\d+\s*=\s*\d+`)},
			{"destructive statement", regexp.MustCompile(`(?i)(drop\s+table|delete\s+from|insert\s+into|truncate\s+table)`)},
			{"time-based probe", regexp.MustCompile(`(?i)(sleep\s*\(|benchmark\s*\(|waitfor\s+delay)`)},
			{"trailing comment", regexp.MustCompile(`(--\s*$|/\*.*\*/)`)},
		},
	},
	{
		threat:    ThreatXSS,
		eventType: EventXSS,
		severity:  SeverityHigh,
		signatures: []signature{
			{"script tag", regexp.MustCompile(`(?i)(<script[^>]*>|</script>)`)},
			{"javascript protocol", regexp.MustCompile(`(?i)(javascript\s*:|vbscript\s*:)`)},
			{"event handler", regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|blur|submit)\s*=`)},
			{"dom probe", regexp.MustCompile(`(?i)(document\.cookie|eval\s*\(|alert\s*\()`)},
			{"iframe injection", regexp.MustCompile(`(?i)<iframe[^>]*>`)},
		},
	},
	{
		threat:    ThreatPathTraversal,
		eventType: EventPathTraversal,
		severity:  SeverityMedium,
		signatures: []signature{
			{"dot-dot-slash", regexp.MustCompile(`\.\./|\.\.\\`)},
			{"encoded traversal", regexp.MustCompile(`(?i)(%2e%2e[/\\]|%2e%2e%2f|\.\.%2f)`)},
			{"sensitive unix path", regexp.MustCompile(`(?i)/etc/(passwd|shadow|hosts)`)},
			{"windows system path", regexp.MustCompile(`(?i)(c:\\windows|c:\\boot\.ini|\\system32\\)`)},
		},
	},
}
