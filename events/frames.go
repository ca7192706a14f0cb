package events

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type FrameType string

const (
	FrameSnapshot FrameType = "snapshot"
	FrameRemoved  FrameType = "removed"
	FrameError    FrameType = "error"
	FrameNeedle   FrameType = "needle"
)

// NewFrame wraps a JSON-serialisable payload into the google.protobuf.Struct
// sent over the room socket:
//
//	{type: <FrameType>, server_timestamp: <unix ms>, payload: {...}}
func NewFrame(frameType FrameType, payload any, now time.Time) (*structpb.Struct, error) {
	fields := map[string]any{
		"type":             string(frameType),
		"server_timestamp": now.UnixMilli(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", frameType, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", frameType, err)
		}
		fields["payload"] = generic
	}

	return structpb.NewStruct(fields)
}

// EncodeFrame is NewFrame followed by binary protobuf marshalling.
func EncodeFrame(frameType FrameType, payload any, now time.Time) ([]byte, error) {
	frame, err := NewFrame(frameType, payload, now)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(frame)
}

func DecodeFrame(data []byte) (*structpb.Struct, error) {
	frame := &structpb.Struct{}
	if err := proto.Unmarshal(data, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
