package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region payload-types

// RequestPayload is the JSON shape of a Resolve request.
type RequestPayload struct {
	Session session.Snapshot `json:"session"`
	Request RequestOptions   `json:"request"`
}

// RequestOptions mirrors resolver.Request with JSON tags.
type RequestOptions struct {
	ProtocolID string `json:"protocol_id,omitempty"`
	StageID    string `json:"stage_id,omitempty"`
	StageIndex *int   `json:"stage_index,omitempty"`
}

// Reply is the JSON shape of a Resolve response.
type Reply struct {
	PassID       string          `json:"pass_id"`
	Decision     string          `json:"decision"`
	SnapshotHash string          `json:"snapshot_hash"`
	Layout       layout.Resolved `json:"layout"`
}

func (o RequestOptions) toRequest() resolver.Request {
	return resolver.Request{ProtocolID: o.ProtocolID, StageID: o.StageID, StageIndex: o.StageIndex}
}

func optionsFrom(r resolver.Request) RequestOptions {
	return RequestOptions{ProtocolID: r.ProtocolID, StageID: r.StageID, StageIndex: r.StageIndex}
}

// #endregion payload-types

// #region conversion

// toStruct converts any JSON-serializable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("empty payload")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// #endregion conversion
