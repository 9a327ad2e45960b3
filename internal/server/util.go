package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/craftvisor/internal/config"
	"github.com/loykin/craftvisor/internal/installer"
	"github.com/loykin/craftvisor/internal/properties"
	"github.com/loykin/craftvisor/internal/supervisor"
	"github.com/loykin/craftvisor/internal/whitelist"
)

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	writeJSON(c, http.StatusBadRequest, errorResp{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, whitelist.ErrInvalidName),
		errors.Is(err, installer.ErrInvalidFilename),
		errors.Is(err, installer.ErrInvalidURL),
		errors.Is(err, config.ErrInvalidMemory),
		errors.Is(err, properties.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, supervisor.ErrNoArtifact),
		errors.Is(err, installer.ErrServerRunning),
		errors.Is(err, supervisor.ErrHeld):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrStopTimedOut),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
