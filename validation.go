package union

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// ValidationErrorsToMap flattens ozzo validation errors into field
// messages.
func ValidationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var fields validation.Errors
	if errors.As(err, &fields) {
		for field, ferr := range fields {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		if nested, ok := richErr.Metadata["fields"].(map[string]string); ok {
			return nested
		}
	}

	out["form"] = err.Error()
	return out
}

func validationFailure(base *goerrors.Error, err error) error {
	clone := base.Clone()
	if clone == nil {
		return err
	}
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"fields": ValidationErrorsToMap(err),
	})
}
