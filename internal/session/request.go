package session

import (
	"bytes"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// headerRequestID correlates the dispatches of one logical request in logs
// and on the backend.
const headerRequestID = "X-Request-Id"

// pendingRequest is one logical call: an immutable request descriptor whose
// body has been buffered so the call can be dispatched a second time after a
// credential refresh. A logical request is never dispatched more than twice.
type pendingRequest struct {
	req  *http.Request
	body []byte // nil when the request carries no body
	id   string

	// retried is owned by the coordinator: set when the request enters the
	// refresh protocol, after which a further 401 is final.
	retried bool
}

// newPendingRequest buffers the request body. The original body is consumed
// and closed; every dispatch gets a fresh reader.
func newPendingRequest(req *http.Request) (*pendingRequest, error) {
	p := &pendingRequest{
		req: req,
		id:  uuid.NewString(),
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		p.body = body
	}

	return p, nil
}

// prepare returns a dispatch-ready clone with a fresh body reader and the
// access credential attached as a bearer header. An empty credential leaves
// the request unauthenticated. The original request is never mutated.
func (p *pendingRequest) prepare(access string) *http.Request {
	req := p.req.Clone(p.req.Context())
	if p.body != nil {
		req.Body = io.NopCloser(bytes.NewReader(p.body))
		req.ContentLength = int64(len(p.body))
		body := p.body
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	req.Header.Set(headerRequestID, p.id)

	return req
}
