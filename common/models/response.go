package models

// BaseResponse wraps every successful JSON response of the gateway.
type BaseResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse is the JSON shape of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
}

// MetaResponse carries pagination metadata.
type MetaResponse struct {
	CurrentPage int64 `json:"current_page"`
	LastPage    int64 `json:"last_page"`
	PerPage     int64 `json:"per_page"`
	Total       int64 `json:"total"`
}

// BasePaginationResponse wraps a paginated collection.
type BasePaginationResponse struct {
	Data interface{}  `json:"data"`
	Meta MetaResponse `json:"meta"`
}
