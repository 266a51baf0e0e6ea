// Package httpx provides HTTP response utilities.
package httpx

// ErrorBody is the stable error shape returned to clients. Internal error
// text never goes into it.
type ErrorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Common bodies.
var (
	BodyForbidden = ErrorBody{Error: "Forbidden", Message: "Insufficient permissions"}
	BodyInternal  = ErrorBody{Error: "Internal Server Error"}
	BodyNotFound  = ErrorBody{Error: "Not Found"}
)

// Unauthorized returns the 401 body for the given failure code.
func Unauthorized(code string) ErrorBody {
	return ErrorBody{Error: "Unauthorized", Code: code}
}

// Validation returns the 400 body carrying field-level detail.
func Validation(fields map[string]string) ErrorBody {
	return ErrorBody{Error: "Validation failed", Fields: fields}
}
