package eligibility

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
)

// Rule maps a normalised name fragment to a course range.
type Rule struct {
	Key string `mapstructure:"key" json:"key"`
	Min int    `mapstructure:"min" json:"min"`
	Max int    `mapstructure:"max" json:"max"`
}

// Table is an ordered list of rules; the first matching key wins.
type Table []Rule

// DefaultTable returns the built-in heuristic ranges.
//
// fisic and matematic are also seen as 1-12 in some legacy screens; the narrower
// ranges below are the ones most screens apply.
func DefaultTable() Table {
	return Table{
		{Key: "astronom", Min: 4, Max: 12},
		{Key: "biolog", Min: 3, Max: 12},
		{Key: "fisic", Min: 7, Max: 12},
		{Key: "matematic", Min: 3, Max: 12},
		{Key: "informatic", Min: 7, Max: 12},
		{Key: "robotic", Min: 3, Max: 12},
		{Key: "quimic", Min: 7, Max: 12},
	}
}

// Match returns the range of the first rule whose key occurs in the normalised name.
func (t Table) Match(name string) (models.CourseRange, bool) {
	normalized := Normalize(name)
	if normalized == "" {
		return models.CourseRange{}, false
	}
	for _, rule := range t {
		if strings.Contains(normalized, rule.Key) {
			return models.CourseRange{Min: rule.Min, Max: rule.Max}, true
		}
	}
	return models.CourseRange{}, false
}

// Validate checks every rule has a key and a sane range.
func (t Table) Validate() error {
	for i, rule := range t {
		if strings.TrimSpace(rule.Key) == "" {
			return fmt.Errorf("rule %d: key required", i)
		}
		if rule.Min < MinCourse || rule.Max > MaxCourse || rule.Min > rule.Max {
			return fmt.Errorf("rule %q: invalid range %d-%d", rule.Key, rule.Min, rule.Max)
		}
	}
	return nil
}

// LoadTable reads a rules file (yaml, json or toml) of the form:
//
//	rules:
//	  - {key: astronom, min: 4, max: 12}
//
// An empty path returns DefaultTable.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read eligibility table: %w", err)
	}
	var file struct {
		Rules []Rule `mapstructure:"rules"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode eligibility table: %w", err)
	}
	table := Table(file.Rules)
	for i := range table {
		table[i].Key = Normalize(table[i].Key)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("eligibility table %s has no rules", path)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
