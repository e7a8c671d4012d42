package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"

	"github.com/junsooki/framereel/internal/frame"
)

// ErrMalformed is returned for messages that do not match the wire contract.
var ErrMalformed = errors.New("malformed message")

// Encode serializes an outbound intent.
func Encode(i Intent) ([]byte, error) {
	return encode(i.action(), i.payload())
}

// Decode parses one inbound message into a typed event.
func Decode(data []byte) (Event, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(msg.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformed, msg.Action)
	}

	switch msg.Action {
	case ActionFrameData:
		var p FrameDataPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: frame data: %v", ErrMalformed, err)
		}
		if p.Frame == nil {
			return nil, fmt.Errorf("%w: frame data without frame", ErrMalformed)
		}
		f, err := decodeFrame(p.Frame)
		if err != nil {
			return nil, err
		}
		return FrameReceived{Frame: f}, nil
	case ActionError:
		var p ErrorPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrMalformed, err)
		}
		return StreamError{Message: p.Error}, nil
	case ActionUploadSuccess:
		var p UploadSuccessPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: upload success: %v", ErrMalformed, err)
		}
		if p.URLBucket == "" {
			return nil, fmt.Errorf("%w: upload success without urlBucket", ErrMalformed)
		}
		return AssetExported{AssetReference: p.URLBucket}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformed, msg.Action)
	}
}

func decodeFrame(w *WireFrame) (*frame.Frame, error) {
	pixels := make([]color.NRGBA, len(w.FrameData))
	for i, px := range w.FrameData {
		if len(px) != 4 {
			return nil, fmt.Errorf("%w: frame %d pixel %d has %d channels", ErrMalformed, w.FrameID, i, len(px))
		}
		for _, v := range px {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: frame %d pixel %d channel out of range", ErrMalformed, w.FrameID, i)
			}
		}
		pixels[i] = color.NRGBA{R: uint8(px[0]), G: uint8(px[1]), B: uint8(px[2]), A: uint8(px[3])}
	}
	f, err := frame.New(w.FrameID, pixels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// DecodeIntent parses an outbound message. Used by the backend side.
func DecodeIntent(data []byte) (Intent, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var p SourcePayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Action, err)
		}
	}
	switch msg.Action {
	case ActionProcessSourceCode:
		return ProcessSource{Source: p.Source, Dimension: p.Dimension}, nil
	case ActionPostToBucket:
		return ExportAsset{Source: p.Source, Dimension: p.Dimension}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrMalformed, msg.Action)
	}
}

// EncodeFrame serializes a frame as a FrameData message.
func EncodeFrame(id int, pixels []color.NRGBA) ([]byte, error) {
	data := make([][]int, len(pixels))
	for i, px := range pixels {
		data[i] = []int{int(px.R), int(px.G), int(px.B), int(px.A)}
	}
	return encode(ActionFrameData, FrameDataPayload{Frame: &WireFrame{FrameID: id, FrameData: data}})
}

// EncodeError serializes an Error message.
func EncodeError(msg string) ([]byte, error) {
	return encode(ActionError, ErrorPayload{Error: msg})
}

// EncodeUploadSuccess serializes an UploadSuccess message.
func EncodeUploadSuccess(url string) ([]byte, error) {
	return encode(ActionUploadSuccess, UploadSuccessPayload{URLBucket: url})
}

func encode(action string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}
	return json.Marshal(Message{Action: action, Data: data})
}
