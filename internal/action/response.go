package action

import "net/http"

// Response is the output state assembled during a dispatch and handed to
// the renderer.
type Response struct {
	Status   int
	Data     map[string]any
	Headers  map[string]string
	Location string
}

// NewResponse returns an empty 200 response.
func NewResponse() *Response {
	return &Response{
		Status:  http.StatusOK,
		Data:    map[string]any{},
		Headers: map[string]string{},
	}
}

// Set stores a value in the response data.
func (r *Response) Set(key string, value any) {
	r.Data[key] = value
}

// Get returns a value from the response data.
func (r *Response) Get(key string) (any, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// SetHeader sets a response header.
func (r *Response) SetHeader(name, value string) {
	r.Headers[name] = value
}
