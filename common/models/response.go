package models

type BaseResponse struct {
	Data any `json:"data"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"message"`
}

type MetaResponse struct {
	CurrentPage int64 `json:"current_page"`
	LastPage    int64 `json:"last_page"`
	PerPage     int64 `json:"per_page"`
	Total       int64 `json:"total"`
}

type BasePaginationResponse struct {
	Data any          `json:"data"`
	Meta MetaResponse `json:"meta"`
}

// EnqueueResponse lists the companies a session was requested for.
type EnqueueResponse struct {
	Subject    string  `json:"subject"`
	CompanyIDs []int64 `json:"company_ids"`
}
