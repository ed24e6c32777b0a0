package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/match"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// ── Heartbeat ────────────────────────────────────────────────────────────────

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if isProtobuf(r) {
		s.handleHeartbeatProto(w, r)
		return
	}

	var req types.HeartbeatRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}

	resp, err := s.heartbeats.Record(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceID) {
			writeError(w, http.StatusBadRequest, "invalid_device_id", err.Error())
			return
		}
		s.log.WithError(err).Error("heartbeat failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHeartbeatProto(w http.ResponseWriter, r *http.Request) {
	var msg structpb.Struct
	if err := readProto(r, &msg); err != nil {
		writeProto(w, http.StatusBadRequest, errorToProto("bad_proto", "invalid protobuf body"))
		return
	}

	resp, err := s.heartbeats.Record(r.Context(), heartbeatRequestFromProto(&msg))
	if err != nil {
		if errors.Is(err, service.ErrInvalidDeviceID) {
			writeProto(w, http.StatusBadRequest, errorToProto("invalid_device_id", err.Error()))
			return
		}
		s.log.WithError(err).Error("heartbeat failed")
		writeProto(w, http.StatusInternalServerError, errorToProto(codeInternal, "unexpected server error"))
		return
	}

	writeProto(w, http.StatusOK, heartbeatResponseToProto(resp))
}

// ── Verification ─────────────────────────────────────────────────────────────

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	proto := isProtobuf(r)

	var req types.VerifyRequest
	if proto {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeProto(w, http.StatusBadRequest, errorToProto("bad_proto", "invalid protobuf body"))
			return
		}
		req = verifyRequestFromProto(&msg)
	} else if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}

	res, err := s.verification.Verify(r.Context(), req)
	if err != nil {
		status := verifyStatus(res.Reason)
		if proto {
			writeProto(w, status, errorToProto(res.Reason, err.Error()))
			return
		}
		writeError(w, status, res.Reason, err.Error())
		return
	}

	resp := types.VerifyResponse{
		OK:         true,
		Matched:    res.Match.Matched,
		SubjectID:  res.Match.SubjectID,
		Score:      res.Match.Score,
		EventID:    res.Event.ID,
		Direction:  res.Event.Direction,
		Outcome:    res.Event.Outcome,
		Reason:     res.Reason,
		DeviceID:   res.Event.DeviceID,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if proto {
		writeProto(w, http.StatusOK, verifyResponseToProto(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func verifyStatus(reason string) int {
	switch reason {
	case service.ReasonTemplateFormat:
		return http.StatusBadRequest
	case service.ReasonUnknownDevice:
		return http.StatusForbidden
	case service.ReasonNotConnected, service.ReasonCancelled:
		return http.StatusServiceUnavailable
	case service.ReasonTimeout:
		return http.StatusGatewayTimeout
	case service.ReasonDeviceFault:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ── Enrollment ───────────────────────────────────────────────────────────────

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req types.EnrollRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
		return
	}

	rec, err := s.enrollment.Enroll(r.Context(), chi.URLParam(r, "subjectID"), req.Template)
	if err != nil {
		s.writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse(rec))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	rec, err := s.enrollment.Activate(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		s.writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse(rec))
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	rec, err := s.enrollment.Deactivate(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		s.writeEnrollmentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollResponse(rec))
}

func (s *Server) writeEnrollmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSubjectID):
		writeError(w, http.StatusBadRequest, "invalid_subject_id", err.Error())
	case errors.Is(err, match.ErrTemplateFormat):
		writeError(w, http.StatusBadRequest, service.ReasonTemplateFormat, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case capture.KindOf(err) != 0, errors.Is(err, service.ErrNoCaptureDevice):
		reason := service.FailureReason(err)
		writeError(w, verifyStatus(reason), reason, err.Error())
	default:
		s.log.WithError(err).Error("enrollment failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "unexpected server error")
	}
}

func enrollResponse(rec types.EnrolledTemplate) types.EnrollResponse {
	return types.EnrollResponse{
		OK:         true,
		SubjectID:  rec.SubjectID,
		Active:     rec.Active,
		EnrolledAt: rec.EnrolledAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

// ── Access history ───────────────────────────────────────────────────────────

type listEventsResponse struct {
	Events []types.AccessEvent `json:"events"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadQuery, err.Error())
		return
	}

	events, err := s.events.List(r.Context(), f)
	if err != nil {
		s.log.WithError(err).Error("list access events failed")
		writeError(w, http.StatusInternalServerError, codeInternal, "unexpected server error")
		return
	}
	if events == nil {
		events = []types.AccessEvent{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events, Limit: f.NormalizedLimit(), Offset: f.Offset})
}

func parseEventFilter(r *http.Request) (store.EventFilter, error) {
	q := r.URL.Query()
	f := store.EventFilter{
		SubjectID: strings.TrimSpace(q.Get("subject_id")),
		DeviceID:  strings.TrimSpace(q.Get("device_id")),
		Direction: types.Direction(q.Get("direction")),
		Outcome:   types.Outcome(q.Get("outcome")),
	}
	if f.Direction != "" && !f.Direction.Valid() {
		return f, errors.New("direction must be entry or exit")
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		return f, errors.New("outcome must be granted or denied")
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, errors.New("from: " + err.Error())
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, errors.New("to: " + err.Error())
	}
	if f.Limit, err = parseInt(q.Get("limit")); err != nil {
		return f, errors.New("limit must be a non-negative integer")
	}
	if f.Offset, err = parseInt(q.Get("offset")); err != nil {
		return f, errors.New("offset must be a non-negative integer")
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp")
	}
	return t.UTC(), nil
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

// ── Capture device ───────────────────────────────────────────────────────────

func (s *Server) handleCaptureDevice(w http.ResponseWriter, _ *http.Request) {
	if s.device == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "no capture device configured")
		return
	}
	writeJSON(w, http.StatusOK, s.device.Info())
}
