// file: internal/server/logger.go
// version: 2.0.0
// guid: 1d2e3f4a-5b6c-7d8e-9f0a-1b2c3d4e5f6a

package server

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	ulid "github.com/oklog/ulid/v2"
)

const requestIDHeader = "X-Request-ID"
const requestIDKey = "request_id"

// OperationLogger tracks the lifecycle of a handler operation
type OperationLogger struct {
	handler    string
	method     string
	path       string
	startTime  time.Time
	requestID  string
	resourceID string
}

// NewOperationLogger creates a new operation logger
func NewOperationLogger(handler, method, path, requestID string) *OperationLogger {
	return &OperationLogger{
		handler:   handler,
		method:    method,
		path:      path,
		startTime: time.Now(),
		requestID: requestID,
	}
}

// operationLogger builds an OperationLogger from the request context.
func operationLogger(c *gin.Context, handler string) *OperationLogger {
	return NewOperationLogger(handler, c.Request.Method, c.Request.URL.Path, c.GetString(requestIDKey))
}

// SetResourceID sets the resource being operated on, e.g. repo:path.
func (ol *OperationLogger) SetResourceID(id string) {
	ol.resourceID = id
}

func (ol *OperationLogger) describe(prefix string) string {
	msg := fmt.Sprintf("[%s] %s %s", prefix, ol.method, ol.path)
	if ol.resourceID != "" {
		msg = fmt.Sprintf("%s (resource: %s)", msg, ol.resourceID)
	}
	return msg
}

// LogStart logs the start of the operation
func (ol *OperationLogger) LogStart() {
	log.Printf("[INFO] %s [request-id: %s]", ol.describe("START"), ol.requestID)
}

// LogSuccess logs the successful completion of the operation
func (ol *OperationLogger) LogSuccess(statusCode int) {
	log.Printf("[INFO] %s (%d) in %v [request-id: %s]",
		ol.describe("SUCCESS"), statusCode, time.Since(ol.startTime), ol.requestID)
}

// LogError logs an error that occurred during the operation
func (ol *OperationLogger) LogError(statusCode int, err error) {
	log.Printf("[ERROR] %s (%d) in %v: %v [request-id: %s]",
		ol.describe("ERROR"), statusCode, time.Since(ol.startTime), err, ol.requestID)
}

// requestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
