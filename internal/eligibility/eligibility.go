// Package eligibility decides whether a student's course admits an academic area.
package eligibility

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

// Course bounds: 1-6 primary, 7-12 secondary.
const (
	MinCourse = 1
	MaxCourse = 12
)

// Checker evaluates eligibility against explicit requirements or a fallback name table.
type Checker struct {
	table Table
}

// NewChecker builds a checker. A nil table falls back to DefaultTable.
func NewChecker(table Table) *Checker {
	if table == nil {
		table = DefaultTable()
	}
	return &Checker{table: table}
}

// IsEligible reports whether course admits area. Invalid courses are never eligible.
func (c *Checker) IsEligible(course int, area models.Area) bool {
	if course < MinCourse || course > MaxCourse {
		return false
	}
	if len(area.Requirements) > 0 {
		return area.Requirements.Contains(course)
	}
	r, ok := c.table.Match(area.Name)
	if !ok {
		return false
	}
	return r.Contains(course)
}

// Range returns the course range that governs area, explicit or heuristic.
func (c *Checker) Range(area models.Area) (models.CourseRanges, bool) {
	if len(area.Requirements) > 0 {
		return area.Requirements, true
	}
	r, ok := c.table.Match(area.Name)
	if !ok {
		return nil, false
	}
	return models.CourseRanges{r}, true
}

// ValidateCourse rejects courses outside 1-12 with a user-facing validation error.
func ValidateCourse(course int) error {
	if course < MinCourse || course > MaxCourse {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("course must be between %d and %d", MinCourse, MaxCourse))
	}
	return nil
}

// CourseLabel renders a course as "5° Primaria" or "2° Secundaria".
func CourseLabel(course int) string {
	switch {
	case course >= 1 && course <= 6:
		return fmt.Sprintf("%d° Primaria", course)
	case course >= 7 && course <= 12:
		return fmt.Sprintf("%d° Secundaria", course-6)
	default:
		return "Curso desconocido"
	}
}

// Normalize lowercases s and strips diacritics ("Física" -> "fisica").
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
