package response

import "net/http"

// Response is the JSON error envelope for the REST API.
type Response struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Error builds an error response with the given message and status.
func Error(msg string, status int) Response {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Response{Status: status, Error: msg}
}

// Rejected builds an error response carrying a stable rejection reason code
// so clients can give precise feedback.
func Rejected(msg, reason string, status int) Response {
	resp := Error(msg, status)
	resp.Reason = reason
	return resp
}
