package handler

type UpdateResponse struct {
	Updated int64 `json:"updated"`
}

type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

type DetailResponse struct {
	Detail string `json:"detail"`
}

// Paginated list, page links are absolute request URLs
type ListResponse struct {
	Count    int64       `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  interface{} `json:"results"`
}
