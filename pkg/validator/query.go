package validator

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"
)

var (
	// ErrEmptySwitches indicates the switches parameter is empty
	ErrEmptySwitches = errors.New("switches cannot be empty")

	// ErrInvalidSwitch indicates a switch count outside 0, 1 and 2
	ErrInvalidSwitch = errors.New("switches must be a comma-separated subset of 0,1,2 or 'all'")
)

const (
	// SwitchesAll selects direct, one-transfer and two-transfer itineraries
	SwitchesAll = "all"

	// MaxSwitches is the highest number of train changes supported
	MaxSwitches = 2
)

// validCriteria contains every supported ranking criterion
var validCriteria = []string{
	"fastest",
	"fewest_switches",
}

var (
	instance *playground.Validate
	once     sync.Once
)

// Struct validates a struct using its `validate` tags, including the
// custom "switches", "criteria" and "stationtext" tags.
func Struct(s interface{}) error {
	return get().Struct(s)
}

func get() *playground.Validate {
	once.Do(func() {
		v := playground.New()
		_ = v.RegisterValidation("switches", func(fl playground.FieldLevel) bool {
			_, err := ParseSwitches(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("criteria", func(fl playground.FieldLevel) bool {
			return IsValidCriteria(fl.Field().String())
		})
		_ = v.RegisterValidation("stationtext", func(fl playground.FieldLevel) bool {
			return SanitizeStation(fl.Field().String()) != ""
		})
		instance = v
	})
	return instance
}

// ParseSwitches parses "0,1", "2" or "all" into a sorted, de-duplicated
// list of switch counts.
func ParseSwitches(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptySwitches
	}
	if strings.EqualFold(raw, SwitchesAll) {
		return []int{0, 1, 2}, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > MaxSwitches {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSwitch, raw)
		}
		seen[n] = true
	}

	result := make([]int, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Ints(result)
	return result, nil
}

// IsValidCriteria checks the ranking criterion against the supported list
func IsValidCriteria(criteria string) bool {
	for _, c := range validCriteria {
		if criteria == c {
			return true
		}
	}
	return false
}

// SanitizeStation trims free-text station input and collapses inner whitespace
func SanitizeStation(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ValidationMessage turns validator errors into a single readable message
func ValidationMessage(err error) string {
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required", "stationtext":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be in YYYY-MM-DD format", field))
		case "criteria":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, strings.Join(validCriteria, ", ")))
		case "switches":
			msgs = append(msgs, ErrInvalidSwitch.Error())
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}
