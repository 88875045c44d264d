package harvest

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var offsetPattern = regexp.MustCompile(`^([+-])(0\d|1[0-4])(?::?([0-5]\d))?$`)

// ParseUTCOffset converts "Z", "+10", "+1000" or "+10:00" into a fixed zone.
func ParseUTCOffset(raw string) (*time.Location, error) {
	if raw == "Z" || raw == "z" {
		return time.UTC, nil
	}
	m := offsetPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, domainError(CodeInvalidOffset, fmt.Sprintf("%q is not a utc offset", raw), nil)
	}
	hours, _ := strconv.Atoi(m[2])
	minutes := 0
	if m[3] != "" {
		minutes, _ = strconv.Atoi(m[3])
	}
	seconds := hours*3600 + minutes*60
	if seconds > 14*3600 {
		return nil, domainError(CodeInvalidOffset, fmt.Sprintf("%q is out of range", raw), nil)
	}
	if m[1] == "-" {
		seconds = -seconds
	}
	return time.FixedZone(FormatUTCOffset(seconds), seconds), nil
}

// FormatUTCOffset renders seconds east of UTC as +HH:MM.
func FormatUTCOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}

// NewStructValidator returns a validator with the utc_offset rule registered.
func NewStructValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("utc_offset", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		if field.Kind() != reflect.String {
			return false
		}
		_, err := ParseUTCOffset(field.String())
		return err == nil
	})
	return v
}
