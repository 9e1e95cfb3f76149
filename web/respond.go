package web

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-union"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error    string            `json:"error"`
	TextCode string            `json:"text_code,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func statusOf(richErr *goerrors.Error) int {
	if richErr == nil || richErr.Code < http.StatusBadRequest {
		return http.StatusInternalServerError
	}
	return richErr.Code
}

// defaultErrHandler renders err as an ErrorResponse. Errors outside the
// go-errors taxonomy are reported as internal failures without details.
func defaultErrHandler(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	body := ErrorResponse{
		Error:    richErr.Message,
		TextCode: richErr.TextCode,
	}
	if fields, ok := richErr.Metadata["fields"].(map[string]string); ok && len(fields) > 0 {
		body.Fields = fields
	}

	return ctx.JSON(statusOf(richErr), body)
}

func validationError(base *goerrors.Error, err error) error {
	return base.Clone().WithMetadata(map[string]any{
		"fields": union.ValidationErrorsToMap(err),
	})
}
