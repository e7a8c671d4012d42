package protocol

import (
	"encoding/json"

	"github.com/junsooki/framereel/internal/frame"
)

// Wire actions.
const (
	ActionProcessSourceCode = "ProcessSourceCode"
	ActionPostToBucket      = "PostToBucket"
	ActionFrameData         = "FrameData"
	ActionError             = "Error"
	ActionUploadSuccess     = "UploadSuccess"
)

// Message is the envelope for every message on the connection.
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SourcePayload is the data of both outbound actions.
type SourcePayload struct {
	Source    string `json:"source"`
	Dimension int    `json:"dimension"`
}

// FrameDataPayload is the data of a FrameData message.
type FrameDataPayload struct {
	Frame *WireFrame `json:"frame"`
}

// WireFrame carries one frame as a flat list of [r,g,b,a] tuples.
type WireFrame struct {
	FrameID   int     `json:"frame_id"`
	FrameData [][]int `json:"frame_data"`
}

// ErrorPayload is the data of an Error message.
type ErrorPayload struct {
	Error string `json:"error"`
}

// UploadSuccessPayload is the data of an UploadSuccess message.
type UploadSuccessPayload struct {
	URLBucket string `json:"urlBucket"`
}

// Intent is an outbound request to the rendering backend.
type Intent interface {
	action() string
	payload() any
}

// ProcessSource asks the backend to run source and stream frames with the
// given grid side length.
type ProcessSource struct {
	Source    string
	Dimension int
}

func (ProcessSource) action() string { return ActionProcessSourceCode }
func (p ProcessSource) payload() any {
	return SourcePayload{Source: p.Source, Dimension: p.Dimension}
}

// ExportAsset asks the backend to render source and upload the result.
type ExportAsset struct {
	Source    string
	Dimension int
}

func (ExportAsset) action() string { return ActionPostToBucket }
func (e ExportAsset) payload() any {
	return SourcePayload{Source: e.Source, Dimension: e.Dimension}
}

// Event is a decoded inbound message. The set of implementations is closed:
// FrameReceived, StreamError, AssetExported and ConnectionError.
type Event interface {
	event()
}

// FrameReceived carries a validated frame.
type FrameReceived struct {
	Frame *frame.Frame
}

// StreamError is an error reported by the backend.
type StreamError struct {
	Message string
}

// AssetExported reports a finished upload.
type AssetExported struct {
	AssetReference string
}

// ConnectionError reports a transport failure: a failed dial or a dropped
// connection.
type ConnectionError struct {
	Err error
}

func (FrameReceived) event()   {}
func (StreamError) event()     {}
func (AssetExported) event()   {}
func (ConnectionError) event() {}
