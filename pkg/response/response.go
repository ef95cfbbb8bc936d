package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	Issues     []Issue     `json:"issues,omitempty"`
}

// Issue points at a single invalid field in a rejected payload
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// ValidationError returns an error response carrying per-field issues
func ValidationError(statusCode int, err string, issues []Issue) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
		Issues:     issues,
	}
}
