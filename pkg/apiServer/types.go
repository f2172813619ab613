package apiServer

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
}

type encryptResponse struct {
	ID       string `json:"id"`
	BytesIn  int64  `json:"bytes_in"`
	BytesOut int64  `json:"bytes_out"`
}

type fileSummary struct {
	ID           string `json:"id"`
	OriginalName string `json:"original_name,omitempty"`
	Bytes        int64  `json:"bytes"`
	CreatedAt    string `json:"created_at"`
}

type listResponse struct {
	Files []fileSummary `json:"files"`
}

type deleteResponse struct {
	Deleted string `json:"deleted"`
}

// AuthFunc decides whether a request may proceed. The default allows
// everything; deployments wrap the server with their own policy.
type AuthFunc func(req *http.Request) error

func defaultAuth(*http.Request) error { return nil }

type Option func(*Server)
