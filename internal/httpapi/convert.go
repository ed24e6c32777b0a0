package httpapi

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// Readers speak protobuf using google.protobuf.Struct messages whose keys
// match the JSON field names.

// ── Heartbeat ────────────────────────────────────────────────────────────────

func heartbeatRequestFromProto(p *structpb.Struct) types.HeartbeatRequest {
	f := p.GetFields()
	req := types.HeartbeatRequest{
		DeviceID:        f["device_id"].GetStringValue(),
		FirmwareVersion: f["firmware_version"].GetStringValue(),
		Status:          f["status"].GetStringValue(),
		IP:              f["ip"].GetStringValue(),
	}
	if up := f["uptime_s"].GetNumberValue(); up > 0 {
		req.UptimeSeconds = uint64(up)
	}
	return req
}

func heartbeatResponseToProto(r types.HeartbeatResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":          structpb.NewBoolValue(r.OK),
		"known":       structpb.NewBoolValue(r.Known),
		"device_id":   structpb.NewStringValue(r.DeviceID),
		"server_time": structpb.NewStringValue(r.ServerTime),
	}}
}

// ── Verification ─────────────────────────────────────────────────────────────

func verifyRequestFromProto(p *structpb.Struct) types.VerifyRequest {
	f := p.GetFields()
	return types.VerifyRequest{
		DeviceID: f["device_id"].GetStringValue(),
		Template: f["template"].GetStringValue(),
	}
}

func verifyResponseToProto(r types.VerifyResponse) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"ok":          structpb.NewBoolValue(r.OK),
		"matched":     structpb.NewBoolValue(r.Matched),
		"score":       structpb.NewNumberValue(r.Score),
		"event_id":    structpb.NewStringValue(r.EventID),
		"direction":   structpb.NewStringValue(string(r.Direction)),
		"outcome":     structpb.NewStringValue(string(r.Outcome)),
		"reason":      structpb.NewStringValue(r.Reason),
		"device_id":   structpb.NewStringValue(r.DeviceID),
		"server_time": structpb.NewStringValue(r.ServerTime),
	}
	if r.SubjectID != "" {
		fields["subject_id"] = structpb.NewStringValue(r.SubjectID)
	}
	return &structpb.Struct{Fields: fields}
}

func errorToProto(code, message string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":      structpb.NewBoolValue(false),
		"code":    structpb.NewStringValue(code),
		"message": structpb.NewStringValue(message),
	}}
}
