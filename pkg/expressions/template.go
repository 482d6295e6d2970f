package expressions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var templatePattern = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

// Template interpolates {{ expression }} placeholders.
type Template struct {
	evaluator *Evaluator
}

func NewTemplate(evaluator *Evaluator) *Template {
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	return &Template{evaluator: evaluator}
}

// Render replaces every placeholder with its value in data. A placeholder that
// fails to evaluate is left as written and reported in the returned error.
func (t *Template) Render(template string, data any) (string, error) {
	var errs []error
	result := templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		submatch := templatePattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		value, err := t.evaluator.EvaluateString(strings.TrimSpace(submatch[1]), data)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return value
	})
	return result, errors.Join(errs...)
}

// Validate checks that every placeholder in template compiles.
func (t *Template) Validate(template string) error {
	var errs []error
	for _, expression := range ExtractExpressions(template) {
		if err := t.evaluator.Validate(expression); err != nil {
			errs = append(errs, fmt.Errorf("invalid expression %q: %w", expression, err))
		}
	}
	return errors.Join(errs...)
}

func HasTemplates(s string) bool {
	return templatePattern.MatchString(s)
}

func ExtractExpressions(template string) []string {
	matches := templatePattern.FindAllStringSubmatch(template, -1)
	expressions := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) >= 2 {
			expressions = append(expressions, strings.TrimSpace(match[1]))
		}
	}
	return expressions
}
