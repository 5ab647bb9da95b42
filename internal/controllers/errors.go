package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/planning"
)

// respondError maps engine errors onto HTTP. Anything unrecognised is
// logged and reported as a bare 500.
func respondError(c *gin.Context, err error) {
	var (
		invalid   *planning.ValidationError
		notFound  *planning.NotFoundError
		malformed *planning.MalformedInputError
	)
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalid.Msg})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &malformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": malformed.Error()})
	default:
		middleware.Log(c).WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// idParam reads a positive integer path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
