package catalog

import "github.com/shopspring/decimal"

// Default returns the built-in lesson plan price table. Private tiers come
// before Group tiers so that amounts sold under both formats resolve to the
// Private plan, matching historical reporting.
func Default() *Catalog {
	c, err := New(
		Plan{
			Label:          "Private-Month",
			LessonType:     LessonTypePrivate,
			DurationMonths: 1,
			TimesPerWeek:   1,
			CostOptions:    amounts(129, 150, 160, 180, 220),
		},
		Plan{
			Label:          "Private-Month_Twice_week",
			LessonType:     LessonTypePrivate,
			DurationMonths: 1,
			TimesPerWeek:   2,
			CostOptions:    amounts(110),
		},
		Plan{
			Label:          "Private_3_Months",
			LessonType:     LessonTypePrivate,
			DurationMonths: 3,
			TimesPerWeek:   1,
			CostOptions:    amounts(504, 540),
		},
		Plan{
			Label:          "Private_6_Months",
			LessonType:     LessonTypePrivate,
			DurationMonths: 6,
			TimesPerWeek:   1,
			CostOptions:    amounts(1080, 840, 960),
		},
		Plan{
			Label:          "Private_6_Months_Twice_week",
			LessonType:     LessonTypePrivate,
			DurationMonths: 6,
			TimesPerWeek:   2,
			CostOptions:    amounts(2180),
		},
		Plan{
			Label:          "Private-Year",
			LessonType:     LessonTypePrivate,
			DurationMonths: 12,
			TimesPerWeek:   1,
			CostOptions:    amounts(1920),
		},
		Plan{
			Label:          "Group-Month",
			LessonType:     LessonTypeGroup,
			DurationMonths: 1,
			TimesPerWeek:   1,
			CostOptions:    amounts(60, 80, 160, 240, 129, 120, 149),
		},
		Plan{
			Label:          "Group-Month_Twice_week",
			LessonType:     LessonTypeGroup,
			DurationMonths: 1,
			TimesPerWeek:   2,
			CostOptions:    amounts(99),
		},
		Plan{
			Label:          "Group_6_Months",
			LessonType:     LessonTypeGroup,
			DurationMonths: 6,
			TimesPerWeek:   1,
			CostOptions:    amounts(420, 225),
		},
		Plan{
			Label:          "Group_6_Months_Twice_week",
			LessonType:     LessonTypeGroup,
			DurationMonths: 6,
			TimesPerWeek:   2,
			CostOptions:    amounts(534),
		},
	)
	if err != nil {
		// The built-in table is validated by tests; failing here means a
		// broken build, not bad input.
		panic(err)
	}
	return c
}

func amounts(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}
