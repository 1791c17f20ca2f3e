package classifier

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sponsorhub/internal/domain"
)

// Built-in patterns tuned for the processor's historical sponsorship phrasing.
// Checked in order; first match wins.
var sponsorshipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsponsors?(?:hip)?\b.*?\bfor\s+([A-Za-z']+(?:\s+[A-Za-z']+)*)`),
	regexp.MustCompile(`(?i)\bsponsor(?:ing)?\s+([A-Za-z']+(?:\s+[A-Za-z']+)*)`),
}

// generalMarker recognizes descriptions that are clearly ordinary giving even
// though no sponsorship pattern applies.
var generalMarker = regexp.MustCompile(`(?i)\b(general|donations?|donate|giving|gift|tithe|offering)\b`)

// Classify derives a routing decision from a free-text payment description.
// Pure and total: it never fails. The second return reports whether any
// built-in pattern actually matched; when false the returned general
// classification is only a fallback and the caller should treat the
// description as unrecognized.
func Classify(description string) (domain.Classification, bool) {
	for _, re := range sponsorshipPatterns {
		m := re.FindStringSubmatch(description)
		if m == nil {
			continue
		}
		name := CanonicalName(m[1])
		if name == "" {
			continue
		}
		return domain.Classification{Kind: domain.KindSponsorship, ChildName: name}, true
	}
	if generalMarker.MatchString(description) {
		return domain.Classification{Kind: domain.KindGeneral}, true
	}
	return domain.Classification{Kind: domain.KindGeneral}, false
}

// CanonicalName normalizes a child name: whitespace collapsed, each token
// title-cased. "SANGWAN" and "sangwan" both become "Sangwan".
func CanonicalName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	// Casers are stateful, so build one per call.
	return cases.Title(language.English).String(strings.Join(fields, " "))
}
