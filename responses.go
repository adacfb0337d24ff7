package rest

// Page is a slice of results together with the total number of matches.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Limit int64 `json:"limit"`
	Skip  int64 `json:"skip"`
} // @name PageResponse

// Redirect tells a client which path to render instead of the one it asked for.
type Redirect struct {
	Requested  string `json:"requested"`
	Path       string `json:"path"`
	Redirected bool   `json:"redirected"`
} // @name RedirectResponse
