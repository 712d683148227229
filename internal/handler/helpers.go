package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"Guardline/internal/dispatch"
	"Guardline/pkg/errors"
	"Guardline/pkg/logger"
	"Guardline/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HeaderUserID carries the acting user. Authentication happens upstream.
const HeaderUserID = "X-User-ID"

const codeInternal = 50000

func badRequest(c *gin.Context, msg string) {
	response.Abort(c, http.StatusBadRequest, dispatch.CodeValidation, msg, gin.H{"error": "validation"})
}

// fail writes a dispatch error with its mapped status and code.
func fail(c *gin.Context, err error) {
	status := dispatch.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("route", c.FullPath()),
			zap.Error(err))
		response.Abort(c, status, codeInternal, "internal error", nil)
		return
	}
	data := gin.H{"error": dispatch.Key(err)}
	for _, kv := range errors.GetContext(err) {
		data[kv.Key] = kv.Value
	}
	response.Abort(c, status, errors.GetCode(err), errors.GetMessage(err), data)
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderUserID)))
	if err != nil || id == uuid.Nil {
		badRequest(c, HeaderUserID+" header must carry a user id")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		badRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}

func queryFloat(c *gin.Context, key string) (*float64, bool) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		badRequest(c, "invalid "+key)
		return nil, false
	}
	return &v, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
