package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"sponsorhub/internal/domain"
	"sponsorhub/internal/services/classifier"
)

// Engine evaluates a snapshot of mapping rules against descriptions. The
// snapshot is loaded once per batch run; admins editing rules mid-batch only
// affect the next run.
type Engine struct {
	rules []compiledRule
}

type compiledRule struct {
	rule domain.MappingRule
	re   *regexp.Regexp // nil unless Match == regex
}

// NewEngine compiles the given rules, ignoring inactive ones. Rule order in
// the input is the tie-break for equal priorities.
func NewEngine(list []domain.MappingRule) (*Engine, error) {
	e := &Engine{}
	for _, r := range list {
		if !r.Active {
			continue
		}
		cr := compiledRule{rule: r}
		if r.Match == domain.MatchRegex {
			re, err := regexp.Compile("(?i)" + r.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
			cr.re = re
		}
		e.rules = append(e.rules, cr)
	}
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority > e.rules[j].rule.Priority
	})
	return e, nil
}

// Match returns the classification of the first rule matching the
// description, or false when no rule applies.
func (e *Engine) Match(description string) (domain.Classification, bool) {
	for _, cr := range e.rules {
		switch cr.rule.Match {
		case domain.MatchExact:
			if description == cr.rule.Pattern {
				return classificationFor(cr.rule, cr.rule.ProjectTitle, cr.rule.ChildTemplate), true
			}
		case domain.MatchContains:
			if strings.Contains(strings.ToLower(description), strings.ToLower(cr.rule.Pattern)) {
				return classificationFor(cr.rule, cr.rule.ProjectTitle, cr.rule.ChildTemplate), true
			}
		case domain.MatchRegex:
			idx := cr.re.FindStringSubmatchIndex(description)
			if idx == nil {
				continue
			}
			title := string(cr.re.ExpandString(nil, cr.rule.ProjectTitle, description, idx))
			child := string(cr.re.ExpandString(nil, cr.rule.ChildTemplate, description, idx))
			return classificationFor(cr.rule, title, child), true
		}
	}
	return domain.Classification{}, false
}

func classificationFor(r domain.MappingRule, title, child string) domain.Classification {
	c := domain.Classification{ProjectTitle: title}
	switch r.ProjectType {
	case domain.ProjectSponsorship:
		c.Kind = domain.KindSponsorship
		c.ChildName = classifier.CanonicalName(child)
	case domain.ProjectCampaign:
		c.Kind = domain.KindCampaign
	default:
		c.Kind = domain.KindGeneral
	}
	return c
}

// CheckPattern validates a pattern for the given match type before a rule is
// persisted. Only regex patterns can actually be invalid.
func CheckPattern(match domain.MatchType, pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("empty pattern")
	}
	if match == domain.MatchRegex {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return err
		}
	}
	return nil
}

// CheckRule validates a whole rule before it is persisted. A sponsorship rule
// without a child template would match rows only to fail at resolve time, so
// it is rejected up front.
func CheckRule(r domain.MappingRule) error {
	if err := CheckPattern(r.Match, r.Pattern); err != nil {
		return err
	}
	if r.ProjectType == domain.ProjectSponsorship && strings.TrimSpace(r.ChildTemplate) == "" {
		return fmt.Errorf("sponsorship rule requires a child template")
	}
	return nil
}
