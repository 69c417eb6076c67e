package catalog

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type yamlPlan struct {
	Label          string    `yaml:"label"`
	LessonType     string    `yaml:"lesson_type"`
	DurationMonths int       `yaml:"duration_months"`
	TimesPerWeek   int       `yaml:"times_per_week"`
	CostOptions    []float64 `yaml:"cost_options"`
}

type yamlFile struct {
	Plans []yamlPlan `yaml:"plans"`
}

// LoadYAML reads a catalog definition of the form:
//
//	plans:
//	  - label: Private-Month
//	    lesson_type: Private
//	    duration_months: 1
//	    times_per_week: 1
//	    cost_options: [129, 150, 160]
//
// The resulting catalog follows the same validation and first-match-wins
// amount resolution as New.
func LoadYAML(r io.Reader) (*Catalog, error) {
	var file yamlFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}

	plans := make([]Plan, len(file.Plans))
	for i, yp := range file.Plans {
		opts := make([]decimal.Decimal, len(yp.CostOptions))
		for j, v := range yp.CostOptions {
			opts[j] = decimal.NewFromFloat(v)
		}
		plans[i] = Plan{
			Label:          yp.Label,
			LessonType:     LessonType(yp.LessonType),
			DurationMonths: yp.DurationMonths,
			TimesPerWeek:   yp.TimesPerWeek,
			CostOptions:    opts,
		}
	}

	return New(plans...)
}
