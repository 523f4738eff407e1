package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LiveState is the lifecycle state of a live channel binding.
type LiveState string

const (
	LiveOff          LiveState = "off"
	LiveStarting     LiveState = "starting"
	LiveWaitingInput LiveState = "waiting_input"
	LiveOn           LiveState = "on"
	LiveStopping     LiveState = "stopping"
	LiveDeleting     LiveState = "deleting"
)

// LiveEvent is a named transition on a LiveVideo.
type LiveEvent string

const (
	LiveEventStart  LiveEvent = "start"
	LiveEventWait   LiveEvent = "wait_input"
	LiveEventOn     LiveEvent = "on"
	LiveEventStop   LiveEvent = "stop"
	LiveEventOff    LiveEvent = "off"
	LiveEventDelete LiveEvent = "delete"
)

type liveEdge struct {
	sources []LiveState
	target  LiveState
}

var liveEdges = map[LiveEvent]liveEdge{
	LiveEventStart:  {sources: []LiveState{LiveStopping, LiveOff}, target: LiveStarting},
	LiveEventWait:   {sources: []LiveState{LiveStarting}, target: LiveWaitingInput},
	LiveEventOn:     {sources: []LiveState{LiveWaitingInput}, target: LiveOn},
	LiveEventStop:   {sources: []LiveState{LiveStarting, LiveOn, LiveWaitingInput}, target: LiveStopping},
	LiveEventOff:    {sources: []LiveState{LiveStopping}, target: LiveOff},
	LiveEventDelete: {sources: []LiveState{LiveOff}, target: LiveDeleting},
}

// ApplyLive returns the target state for event from current, or
// ErrTransitionNotAllowed if current is not a valid source for event.
func ApplyLive(current LiveState, event LiveEvent) (LiveState, error) {
	edge, ok := liveEdges[event]
	if !ok {
		return current, ErrTransitionNotAllowed
	}
	for _, s := range edge.sources {
		if s == current {
			return edge.target, nil
		}
	}
	return current, ErrTransitionNotAllowed
}

// LiveEdge exposes an event's source set and target for the repository CAS.
func LiveEdge(event LiveEvent) (sources []LiveState, target LiveState, ok bool) {
	edge, ok := liveEdges[event]
	return edge.sources, edge.target, ok
}

// GeoType restricts CDN delivery by country.
type GeoType string

const (
	GeoNone      GeoType = "none"
	GeoWhitelist GeoType = "whitelist"
	GeoBlacklist GeoType = "blacklist"
)

// LiveVideo binds an organization's live stream to exactly one external
// channel and one external input; the three share a lifecycle.
type LiveVideo struct {
	ID             uuid.UUID  `json:"id"`
	VideoID        uuid.UUID  `json:"video_id"`
	Name           string     `json:"name"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	State          LiveState  `json:"state"`
	// InputState is the set of currently active alert names. Order is
	// insertion order, kept for display only.
	InputState           []string  `json:"input_state"`
	MLInputID            string    `json:"ml_input_id"`
	MLInputURL           string    `json:"ml_input_url"`
	MLChannelARN         string    `json:"ml_channel_arn"`
	SNSTopicARN          string    `json:"sns_topic_arn"`
	CFID                 string    `json:"cf_id"`
	CFDomain             string    `json:"cf_domain"`
	GeolocationType      GeoType   `json:"geolocation_type"`
	GeolocationCountries []string  `json:"geolocation_countries"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// MLChannelID is the channel id portion of the channel ARN.
func (l *LiveVideo) MLChannelID() string {
	parts := strings.Split(l.MLChannelARN, ":")
	return parts[len(parts)-1]
}
