package application

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/example/lesson-scheduler/internal/timezone"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate

	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func inputValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return toSnakeCase(field.Name)
			}
			return name
		})
		_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return slugPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// validateStruct runs tag validation and returns field errors keyed by their
// JSON path, e.g. "availability[0].end_minute".
func validateStruct(input any) *ValidationError {
	vErr := &ValidationError{}
	err := inputValidator().Struct(input)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("_", "is invalid")
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldPath(fe.Namespace()), validationMessage(fe))
	}
	return vErr
}

func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "timezone":
		return "must be a valid IANA timezone"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "slug":
		return "must contain only lowercase letters, digits and hyphens"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte", "max":
		return "must be at most " + fe.Param()
	case "gtfield":
		return "must be after " + toSnakeCase(fe.Param())
	}
	return "is invalid"
}

func toSnakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validateWindowOverlap rejects availability windows that overlap on the same
// weekday. Touching windows are allowed.
func validateWindowOverlap(field string, windows []WeeklyWindow, vErr *ValidationError) {
	byDay := make(map[int][]WeeklyWindow)
	for _, w := range windows {
		byDay[w.DayOfWeek] = append(byDay[w.DayOfWeek], w)
	}
	for day, list := range byDay {
		sort.Slice(list, func(i, j int) bool { return list[i].StartMinute < list[j].StartMinute })
		for i := 1; i < len(list); i++ {
			if list[i].StartMinute < list[i-1].EndMinute {
				vErr.add(field, fmt.Sprintf("windows on day %d must not overlap", day))
				break
			}
		}
	}
}

// validateDailyLimit requires a usable cap when daily_limit mode is selected.
func validateDailyLimit(prefix string, input MeetingTypeInput, vErr *ValidationError) {
	if input.AvailabilityMode == ModeDailyLimit && input.DailyLimit < 1 {
		vErr.add(prefix+"daily_limit", "must be at least 1")
	}
}

// validateSettings applies the cross-field rules for travel mode.
func validateSettings(prefix string, input ScheduleSettingsInput, vErr *ValidationError) {
	if !input.TravelModeEnabled {
		return
	}
	if input.TravelTimezone == "" {
		vErr.add(prefix+"travel_timezone", "is required")
	}
	if input.TravelStartDate == "" {
		vErr.add(prefix+"travel_start_date", "is required")
	}
	if input.TravelEndDate == "" {
		vErr.add(prefix+"travel_end_date", "is required")
	}
	start, errStart := timezone.ParseDate(input.TravelStartDate)
	end, errEnd := timezone.ParseDate(input.TravelEndDate)
	if errStart == nil && errEnd == nil && end.Before(start) {
		vErr.add(prefix+"travel_end_date", "must not be before travel_start_date")
	}
}
