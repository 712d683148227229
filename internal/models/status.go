package models

import (
	"fmt"
	"strings"
)

type ServiceType string

const (
	ServiceCall      ServiceType = "call"
	ServiceSecurity  ServiceType = "security"
	ServiceAmbulance ServiceType = "ambulance"
	ServiceFire      ServiceType = "fire"
	ServiceTowing    ServiceType = "towing"
)

var serviceTypes = []ServiceType{ServiceCall, ServiceSecurity, ServiceAmbulance, ServiceFire, ServiceTowing}

func ServiceTypes() []ServiceType { return append([]ServiceType(nil), serviceTypes...) }

func (s ServiceType) Valid() bool {
	for _, t := range serviceTypes {
		if s == t {
			return true
		}
	}
	return false
}

func ParseServiceType(s string) (ServiceType, error) {
	t := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid service type %q", s)
	}
	return t, nil
}

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAssigned  RequestStatus = "assigned"
	StatusAccepted  RequestStatus = "accepted"
	StatusEnRoute   RequestStatus = "en_route"
	StatusArrived   RequestStatus = "arrived"
	StatusCompleted RequestStatus = "completed"
	StatusHandled   RequestStatus = "handled"

	// 控制台使用的辅助状态，不参与 accept/reject 等生命周期校验
	StatusEscalated    RequestStatus = "escalated"
	StatusAcknowledged RequestStatus = "acknowledged"
)

var allStatuses = []RequestStatus{
	StatusPending, StatusAssigned, StatusAccepted, StatusEnRoute, StatusArrived,
	StatusCompleted, StatusHandled, StatusEscalated, StatusAcknowledged,
}

// lifecycle edges; same-status re-entry and dashboard statuses are handled
// in CanTransition
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:  {StatusAssigned, StatusHandled},
	StatusAssigned: {StatusAccepted, StatusPending, StatusHandled},
	StatusAccepted: {StatusEnRoute, StatusArrived, StatusCompleted, StatusAssigned},
	StatusEnRoute:  {StatusArrived, StatusCompleted},
	StatusArrived:  {StatusCompleted},
}

// ActiveStatuses are the statuses considered by duplicate detection.
var ActiveStatuses = []RequestStatus{StatusPending, StatusAssigned, StatusAccepted, StatusEnRoute}

func (s RequestStatus) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusHandled
}

func (s RequestStatus) Dashboard() bool {
	return s == StatusEscalated || s == StatusAcknowledged
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	st := RequestStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// CanTransition reports whether a request in from may move to to.
// Terminal statuses admit nothing. Re-entering the current status is
// allowed. Dashboard statuses may be set on any open request; from a
// dashboard status only another dashboard status is reachable here, the
// way back is checked against PanicRequest.EscalatedFrom.
func CanTransition(from, to RequestStatus) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if from == to || to.Dashboard() {
		return true
	}
	if from.Dashboard() {
		return false
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusIn reports whether s is one of set.
func StatusIn(s RequestStatus, set ...RequestStatus) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
