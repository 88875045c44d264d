package filter

import (
	"encoding/json"
	"fmt"

	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
)

// ArgumentError is raised for every invalid filter request. It carries the
// offending fragment so clients can see what was rejected.
type ArgumentError struct {
	Message  string
	Fragment any
}

func (e *ArgumentError) Error() string {
	if e.Fragment == nil {
		return "filter parameters were not valid: " + e.Message
	}
	return fmt.Sprintf("filter parameters were not valid: %s (%s)", e.Message, describe(e.Fragment))
}

// AppError maps the error onto the API error envelope.
func (e *ArgumentError) AppError() *appErrors.Error {
	appErr := appErrors.Clone(appErrors.ErrFilterArgument, e.Error())
	if e.Fragment != nil {
		appErr.Details = map[string]any{"fragment": e.Fragment}
	}
	return appErr
}

func argErr(fragment any, format string, args ...any) error {
	return &ArgumentError{Message: fmt.Sprintf(format, args...), Fragment: fragment}
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const limit = 200
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
