package dto

// ErrorResponse is the body of every non-2xx response. Code is stable and
// meant for programmatic handling; Message is for humans.
type ErrorResponse struct {
	Code    string `json:"code" example:"pool_not_open"`
	Message string `json:"message" example:"pool is not admitting users right now"`
	Details any    `json:"details,omitempty" swaggertype:"object"`
}
