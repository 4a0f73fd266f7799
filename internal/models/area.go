package models

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CourseRange is an inclusive span of course levels (1-12).
type CourseRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether course lies within the range, both ends included.
func (r CourseRange) Contains(course int) bool {
	return course >= r.Min && course <= r.Max
}

func (r CourseRange) String() string {
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// CourseRanges is the explicit eligibility requirement of an area. Stored as text ("4-12,7").
type CourseRanges []CourseRange

// Contains reports whether any range admits course.
func (rs CourseRanges) Contains(course int) bool {
	for _, r := range rs {
		if r.Contains(course) {
			return true
		}
	}
	return false
}

func (rs CourseRanges) String() string {
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// ParseCourseRanges parses a comma separated list of "min-max" or single course values.
func ParseCourseRanges(raw string) (CourseRanges, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ranges CourseRanges
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, found := strings.Cut(part, "-")
		min, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid course range %q", part)
		}
		max := min
		if found {
			if max, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid course range %q", part)
			}
		}
		if min > max {
			return nil, fmt.Errorf("course range %q is inverted", part)
		}
		ranges = append(ranges, CourseRange{Min: min, Max: max})
	}
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Min < ranges[j].Min })
	return ranges, nil
}

// Value implements driver.Valuer.
func (rs CourseRanges) Value() (driver.Value, error) {
	if len(rs) == 0 {
		return nil, nil
	}
	return rs.String(), nil
}

// Scan implements sql.Scanner.
func (rs *CourseRanges) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*rs = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported course ranges type %T", src)
	}
	parsed, err := ParseCourseRanges(raw)
	if err != nil {
		return err
	}
	*rs = parsed
	return nil
}

// Area is an academic competition subject offered by a call.
type Area struct {
	ID           string       `db:"id" json:"id"`
	CallID       string       `db:"call_id" json:"call_id,omitempty"`
	Name         string       `db:"name" json:"name"`
	Description  string       `db:"description" json:"description"`
	Requirements CourseRanges `db:"requirements" json:"requirements,omitempty"`
}
