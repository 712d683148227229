package handlers

import (
	"net/http"
	"strings"
	"time"

	"Guardline/internal/listeners"
	"Guardline/pkg/response"
	"Guardline/pkg/search"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) handleSearchRequests(c *gin.Context) {
	if h.index == nil {
		response.Abort(c, http.StatusServiceUnavailable, http.StatusServiceUnavailable, "search is disabled", nil)
		return
	}

	req := search.SearchRequest{
		Keyword: strings.TrimSpace(c.Query("q")),
		From:    queryInt(c, "from", 0),
		Size:    queryInt(c, "size", 20),
		SortBy:  []string{"-created_at"},
	}
	terms := map[string][]string{}
	for _, key := range []string{"status", "service_type", "group_id", "team_id", "phone"} {
		if vals := splitList(c.Query(key)); len(vals) > 0 {
			terms[key] = vals
		}
	}
	if len(terms) > 0 {
		req.MustTerms = terms
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(c, "since must be RFC3339")
			return
		}
		req.TimeRanges = []search.TimeRangeFilter{{Field: "created_at", From: &t}}
	}

	lat, ok := queryFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := queryFloat(c, "lon")
	if !ok {
		return
	}
	radius, ok := queryFloat(c, "radius_km")
	if !ok {
		return
	}
	if lat != nil && lon != nil {
		r := 5.0
		if radius != nil {
			r = *radius
		}
		req.Near = &search.GeoFilter{Lat: *lat, Lon: *lon, RadiusKm: r}
	}

	res, err := h.index.Search(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", res)
}

func (h *Handlers) handleRequestStream(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.engine.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.hub.ServeSSE(c, listeners.RequestGroup(id))
}

func (h *Handlers) handleRequestWS(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if _, err := h.engine.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.hub.ServeWS(c.Writer, c.Request, listeners.RequestGroup(id))
}

func (h *Handlers) handleDashboardStream(c *gin.Context) {
	h.hub.ServeSSE(c, listeners.GroupDashboard)
}
