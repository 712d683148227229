package handlers

import (
	"time"

	"Guardline/internal/dispatch"
	"Guardline/internal/geo"
	"Guardline/internal/models"
	"Guardline/pkg/middleware"
	"Guardline/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *Handlers) handleSubmit(c *gin.Context) {
	var in dispatch.SubmitInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Language == "" {
		in.Language = c.GetString(middleware.ContextLanguage)
	}
	req, err := h.engine.Submit(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, "emergency request submitted", req)
}

func (h *Handlers) handleListRequests(c *gin.Context) {
	f := models.RequestFilter{
		Phone:  c.Query("phone"),
		Offset: queryInt(c, "offset", 0),
		Limit:  queryInt(c, "limit", 50),
	}
	for _, s := range splitList(c.Query("status")) {
		st, err := models.ParseRequestStatus(s)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.Status = append(f.Status, st)
	}
	if s := c.Query("service_type"); s != "" {
		st, err := models.ParseServiceType(s)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		f.ServiceType = st
	}
	var ok bool
	if f.GroupID, ok = queryUUID(c, "group_id"); !ok {
		return
	}
	if f.AssignedTeamID, ok = queryUUID(c, "team_id"); !ok {
		return
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(c, "since must be RFC3339")
			return
		}
		f.Since = &t
	}

	rows, total, err := h.engine.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", gin.H{"items": rows, "total": total})
}

func (h *Handlers) handleGetRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := h.engine.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", req)
}

func (h *Handlers) handleRequestHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rows, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", gin.H{"items": rows})
}

type updateStatusRequest struct {
	Status  models.RequestStatus `json:"status" binding:"required"`
	Message string               `json:"message"`
	Lat     *float64             `json:"lat"`
	Lon     *float64             `json:"lon"`
}

func (h *Handlers) handleUpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body updateStatusRequest
	if !bindJSON(c, &body) {
		return
	}
	var loc *geo.Point
	if body.Lat != nil && body.Lon != nil {
		loc = &geo.Point{Lat: *body.Lat, Lon: *body.Lon}
	}
	req, err := h.engine.UpdateStatus(c.Request.Context(), id, body.Status, body.Message, &by, loc)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "status updated", req)
}

type allocateTeamRequest struct {
	TeamID uuid.UUID `json:"teamId" binding:"required"`
}

func (h *Handlers) handleAllocateTeam(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body allocateTeamRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.AllocateToTeam(c.Request.Context(), id, body.TeamID, by)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "allocated to team", req)
}

type allocateProviderRequest struct {
	ProviderID uuid.UUID `json:"providerId" binding:"required"`
}

func (h *Handlers) handleAllocateProvider(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body allocateProviderRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.AllocateToServiceProvider(c.Request.Context(), id, body.ProviderID, by)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "allocated to service provider", req)
}

type assignNearestRequest struct {
	MaxDistanceKm *float64 `json:"maxDistanceKm"`
}

func (h *Handlers) handleAssignNearest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body assignNearestRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	req, nearest, err := h.assigner.AssignToNearestTeam(c.Request.Context(), id, by, body.MaxDistanceKm)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "assigned to nearest team", gin.H{"request": req, "team": nearest})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handlers) handleCallService(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body notesRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.HandleCallService(c.Request.Context(), id, by, body.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "call handled", req)
}

type reassignRequest struct {
	NewTeamID            *uuid.UUID `json:"newTeamId"`
	NewServiceProviderID *uuid.UUID `json:"newServiceProviderId"`
	Reason               string     `json:"reason"`
}

func (h *Handlers) handleReassign(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	by, ok := actor(c)
	if !ok {
		return
	}
	var body reassignRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.Reassign(c.Request.Context(), dispatch.ReassignInput{
		RequestID:            id,
		NewTeamID:            body.NewTeamID,
		NewServiceProviderID: body.NewServiceProviderID,
		ReassignedBy:         by,
		Reason:               body.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "reassigned", req)
}

type acceptRequest struct {
	AgentID    uuid.UUID `json:"agentId" binding:"required"`
	EtaMinutes *int      `json:"etaMinutes"`
}

func (h *Handlers) handleAccept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body acceptRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.Accept(c.Request.Context(), id, body.AgentID, body.EtaMinutes)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "accepted", req)
}

type rejectRequest struct {
	AgentID uuid.UUID `json:"agentId" binding:"required"`
	Reason  string    `json:"reason"`
}

func (h *Handlers) handleReject(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body rejectRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.Reject(c.Request.Context(), id, body.AgentID, body.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "rejected", req)
}

type locationRequest struct {
	AgentID uuid.UUID `json:"agentId" binding:"required"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Message string    `json:"message"`
}

func (h *Handlers) handleAgentLocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body locationRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.UpdateAgentLocation(c.Request.Context(), id, body.AgentID, body.Lat, body.Lon, body.Message)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "location updated", req)
}

type arrivedRequest struct {
	AgentID uuid.UUID `json:"agentId" binding:"required"`
	Notes   string    `json:"notes"`
}

func (h *Handlers) handleArrived(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body arrivedRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.MarkArrived(c.Request.Context(), id, body.AgentID, body.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "arrived", req)
}

type completeRequest struct {
	AgentID uuid.UUID `json:"agentId" binding:"required"`
	IsPrank bool      `json:"isPrank"`
	Rating  *int      `json:"rating"`
	Notes   string    `json:"notes"`
}

func (h *Handlers) handleComplete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body completeRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.engine.CompleteWithFeedback(c.Request.Context(), dispatch.CompleteInput{
		RequestID: id,
		AgentID:   body.AgentID,
		IsPrank:   body.IsPrank,
		Rating:    body.Rating,
		Notes:     body.Notes,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "completed", req)
}

func (h *Handlers) handleNearestTeam(c *gin.Context) {
	lat, ok := queryFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := queryFloat(c, "lon")
	if !ok {
		return
	}
	if lat == nil || lon == nil {
		badRequest(c, "lat and lon are required")
		return
	}
	firmID, ok := queryUUID(c, "firm_id")
	if !ok {
		return
	}
	td, err := h.assigner.FindNearestTeam(c.Request.Context(), geo.Point{Lat: *lat, Lon: *lon}, firmID)
	if err != nil {
		fail(c, err)
		return
	}
	if td == nil {
		fail(c, dispatch.ErrNotFound.WithContext("reason", "no active team with an active coverage area"))
		return
	}
	response.Success(c, "success", td)
}
