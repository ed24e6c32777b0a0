package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The reader driver protocol uses only protobuf well-known types, so no
// generated stubs are needed on either side.
const (
	ReaderServiceName = "portunus.reader.v1.Reader"

	readerDeviceInfoMethod = "/" + ReaderServiceName + "/DeviceInfo"
	readerCaptureMethod    = "/" + ReaderServiceName + "/Capture"
)

// ReaderServer is implemented by reader drivers.  Capture receives the
// mode name ("enrollment" or "verification") and returns the raw template.
type ReaderServer interface {
	DeviceInfo(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	Capture(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// RegisterReaderServer exposes a driver on s.
func RegisterReaderServer(s grpc.ServiceRegistrar, srv ReaderServer) {
	s.RegisterService(&readerServiceDesc, srv)
}

var readerServiceDesc = grpc.ServiceDesc{
	ServiceName: ReaderServiceName,
	HandlerType: (*ReaderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DeviceInfo", Handler: readerDeviceInfoHandler},
		{MethodName: "Capture", Handler: readerCaptureHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portunus/reader/v1/reader.proto",
}

func readerDeviceInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReaderServer).DeviceInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: readerDeviceInfoMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ReaderServer).DeviceInfo(ctx, req.(*emptypb.Empty))
	})
}

func readerCaptureHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReaderServer).Capture(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: readerCaptureMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(ReaderServer).Capture(ctx, req.(*wrapperspb.StringValue))
	})
}

// ── Client ───────────────────────────────────────────────────────────────────

type HardwareConfig struct {
	// Addr is the gRPC target of the reader driver, e.g. "127.0.0.1:50051".
	Addr string
	// DialOptions are appended after the default insecure transport
	// credentials (the driver is expected to run on the same host).
	DialOptions []grpc.DialOption
}

// Hardware delegates capture to a physical reader driver.
type Hardware struct {
	cfg HardwareConfig

	mu   sync.RWMutex
	conn *grpc.ClientConn
	info DeviceInfo
}

func NewHardware(cfg HardwareConfig) *Hardware {
	return &Hardware{
		cfg:  cfg,
		info: DeviceInfo{ID: cfg.Addr, Status: StatusDisconnected, Source: "hardware"},
	}
}

func (h *Hardware) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != nil {
		return nil
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, h.cfg.DialOptions...)

	conn, err := grpc.NewClient(h.cfg.Addr, opts...)
	if err != nil {
		return newError(KindNotConnected, h.info.ID, fmt.Errorf("dial %s: %w", h.cfg.Addr, err))
	}

	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, readerDeviceInfoMethod, &emptypb.Empty{}, out); err != nil {
		_ = conn.Close()
		return mapStatus(ctx, h.info.ID, err)
	}

	h.conn = conn
	h.info = deviceInfoFromStruct(out, h.cfg.Addr)
	return nil
}

func (h *Hardware) Disconnect(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		return nil
	}
	err := h.conn.Close()
	h.conn = nil
	h.info.Status = StatusDisconnected
	return err
}

func (h *Hardware) Info() DeviceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.info
}

func (h *Hardware) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	h.mu.RLock()
	conn, id := h.conn, h.info.ID
	h.mu.RUnlock()

	if conn == nil {
		return nil, newError(KindNotConnected, id, nil)
	}

	out := new(wrapperspb.BytesValue)
	if err := conn.Invoke(ctx, readerCaptureMethod, wrapperspb.String(mode.String()), out); err != nil {
		return nil, mapStatus(ctx, id, err)
	}
	if len(out.GetValue()) == 0 {
		return nil, newError(KindDeviceFault, id, errors.New("reader returned an empty template"))
	}
	return out.GetValue(), nil
}

func mapStatus(ctx context.Context, id string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return newError(KindTimeout, id, err)
	case codes.Canceled:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return newError(KindDeviceFault, id, err)
	case codes.Unavailable:
		return newError(KindNotConnected, id, err)
	default:
		return newError(KindDeviceFault, id, err)
	}
}

func deviceInfoFromStruct(s *structpb.Struct, fallbackID string) DeviceInfo {
	f := s.GetFields()
	info := DeviceInfo{
		ID:       f["id"].GetStringValue(),
		Firmware: f["firmware"].GetStringValue(),
		Status:   f["status"].GetStringValue(),
		Source:   "hardware",
	}
	if info.ID == "" {
		info.ID = fallbackID
	}
	if info.Status == "" {
		info.Status = StatusConnected
	}
	return info
}
