package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/store"
)

// httpError carries the status a handler should answer with.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error { return &httpError{status: http.StatusBadRequest, msg: msg} }
func badGateway(msg string) error { return &httpError{status: http.StatusBadGateway, msg: msg} }

// statusOf maps an error to an HTTP status.
func statusOf(err error) int {
	var he *httpError
	if errors.As(err, &he) {
		return he.status
	}
	if errors.Is(err, store.ErrLoopActive) {
		return http.StatusConflict
	}
	var apiErr *agentapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return http.StatusNotFound
		case http.StatusBadRequest:
			if !apiErr.Retryable() {
				return http.StatusBadRequest
			}
		}
	}
	return http.StatusBadGateway
}

// abort writes {"error": msg} with the mapped status.
func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}
