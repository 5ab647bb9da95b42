package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an ID, reusing the caller's when sent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Log returns a logrus entry carrying the request ID and, once
// authenticated, the user.
func Log(c *gin.Context) *logrus.Entry {
	fields := logrus.Fields{"request_id": c.GetString("request_id")}
	if uid, ok := c.Get("user_id"); ok {
		fields["user_id"] = uid
	}
	return logrus.WithFields(fields)
}
