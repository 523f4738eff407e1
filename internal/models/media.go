package models

import (
	"time"

	"github.com/google/uuid"
)

// MediaState is the lifecycle state of an on-demand asset.
type MediaState string

const (
	MediaWaitingFile      MediaState = "waiting_file"
	MediaQueuingFailed    MediaState = "queuing_failed"
	MediaQueued           MediaState = "queued"
	MediaProcessing       MediaState = "processing"
	MediaProcessingFailed MediaState = "processing_failed"
	MediaFinished         MediaState = "finished"
	MediaFailed           MediaState = "failed"
)

// MediaEvent is a named transition on a Media.
type MediaEvent string

const (
	MediaEventQueue       MediaEvent = "queue"
	MediaEventQueueFail   MediaEvent = "queue_fail"
	MediaEventProcess     MediaEvent = "process"
	MediaEventProcessFail MediaEvent = "process_fail"
	MediaEventFinish      MediaEvent = "finish"
	MediaEventReprocess   MediaEvent = "reprocess"
)

type mediaEdge struct {
	sources []MediaState
	target  MediaState
}

var mediaEdges = map[MediaEvent]mediaEdge{
	MediaEventQueue:       {sources: []MediaState{MediaWaitingFile}, target: MediaQueued},
	MediaEventQueueFail:   {sources: []MediaState{MediaWaitingFile}, target: MediaQueuingFailed},
	MediaEventProcess:     {sources: []MediaState{MediaQueued}, target: MediaProcessing},
	MediaEventProcessFail: {sources: []MediaState{MediaProcessing}, target: MediaProcessingFailed},
	MediaEventFinish:      {sources: []MediaState{MediaProcessing, MediaQueued}, target: MediaFinished},
	MediaEventReprocess:   {sources: []MediaState{MediaFinished, MediaProcessingFailed, MediaFailed, MediaQueuingFailed}, target: MediaQueued},
}

// ApplyMedia returns the target state for event from current, or
// ErrTransitionNotAllowed if current is not a valid source for event.
func ApplyMedia(current MediaState, event MediaEvent) (MediaState, error) {
	edge, ok := mediaEdges[event]
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

// MediaEdge exposes an event's source set and target so repositories can
// perform the transition as an atomic compare-and-set on the state column.
func MediaEdge(event MediaEvent) (sources []MediaState, target MediaState, ok bool) {
	edge, ok := mediaEdges[event]
	return edge.sources, edge.target, ok
}

// Metadata keys used for transcode job tracking.
const (
	MetaConvertJobID = "media_convert_job_id"
	MetaJobPercent   = "job_percent_complete"
)

// Media types and delivery protocols.
const (
	MediaTypeVideo = "video"
	MediaTypeAudio = "audio"

	ProtocolHLS  = "hls"
	ProtocolDASH = "dash"
)

// Media is an on-demand asset (uploaded file → transcode → CDN).
type Media struct {
	ID             uuid.UUID         `json:"id"`
	VideoID        uuid.UUID         `json:"video_id"`
	Name           string            `json:"name"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	CreatedBy      *uuid.UUID        `json:"created_by,omitempty"`
	MediaType      string            `json:"media_type"`
	Protocol       string            `json:"protocol_type"`
	State          MediaState        `json:"state"`
	Metadata       map[string]string `json:"metadata"`
	Storage        int64             `json:"storage"`
	Duration       int               `json:"duration"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}
