package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vibast-solutions/ms-go-logistics/app/campaign"
	"github.com/vibast-solutions/ms-go-logistics/app/service"
)

const (
	campaignProgressService = "logistics.CampaignProgress"
	getMethod               = "/" + campaignProgressService + "/Get"
	watchMethod             = "/" + campaignProgressService + "/Watch"
)

// CampaignProgressServer is the server API for the campaign progress service.
// Requests carry the campaign id; snapshots travel as structs with the same
// field names as the HTTP API.
type CampaignProgressServer interface {
	Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Watch(req *wrapperspb.StringValue, stream CampaignProgressWatchServer) error
}

type CampaignProgressWatchServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s *watchServerStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

var CampaignProgressServiceDesc = grpc.ServiceDesc{
	ServiceName: campaignProgressService,
	HandlerType: (*CampaignProgressServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "logistics/campaign_progress.proto",
}

func RegisterCampaignProgressServer(s grpc.ServiceRegistrar, srv CampaignProgressServer) {
	s.RegisterService(&CampaignProgressServiceDesc, srv)
}

func getHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CampaignProgressServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CampaignProgressServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CampaignProgressServer).Watch(in, &watchServerStream{stream})
}

type Server struct {
	campaignService *service.CampaignService
	broadcaster     *campaign.Broadcaster
}

func NewServer(campaignService *service.CampaignService, broadcaster *campaign.Broadcaster) *Server {
	return &Server{campaignService: campaignService, broadcaster: broadcaster}
}

func (s *Server) Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	snapshot, err := s.campaignService.Progress(ctx, strings.TrimSpace(req.GetValue()))
	if err != nil {
		return nil, statusFromError(ctx, err, "Get campaign progress failed")
	}
	return snapshotToStruct(snapshot)
}

// Watch streams progress until the campaign reaches a terminal state or the
// client goes away.
func (s *Server) Watch(req *wrapperspb.StringValue, stream CampaignProgressWatchServer) error {
	ctx := stream.Context()
	campaignID := strings.TrimSpace(req.GetValue())
	if _, err := s.campaignService.Progress(ctx, campaignID); err != nil {
		return statusFromError(ctx, err, "Watch campaign progress failed")
	}

	updates, unsubscribe := s.broadcaster.Subscribe(ctx, campaignID)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				return nil
			}
			msg, err := snapshotToStruct(&snapshot)
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
			if snapshot.IsTerminal() {
				return nil
			}
		}
	}
}

func statusFromError(ctx context.Context, err error, action string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, "campaign id is required")
	case errors.Is(err, service.ErrCampaignNotFound):
		return status.Error(codes.NotFound, "campaign not found")
	default:
		loggerWithContext(ctx).WithError(err).Error(action)
		return status.Error(codes.Internal, "internal server error")
	}
}

func snapshotToStruct(snapshot *campaign.Snapshot) (*structpb.Struct, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return msg, nil
}

// CampaignProgressClient is the client side of the campaign progress service.
type CampaignProgressClient struct {
	cc grpc.ClientConnInterface
}

func NewCampaignProgressClient(cc grpc.ClientConnInterface) *CampaignProgressClient {
	return &CampaignProgressClient{cc: cc}
}

func (c *CampaignProgressClient) Get(ctx context.Context, campaignID string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getMethod, wrapperspb.String(campaignID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens the progress stream. Call Recv until it returns io.EOF.
func (c *CampaignProgressClient) Watch(ctx context.Context, campaignID string, opts ...grpc.CallOption) (*CampaignProgressWatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &CampaignProgressServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(campaignID)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &CampaignProgressWatchClient{stream: stream}, nil
}

type CampaignProgressWatchClient struct {
	stream grpc.ClientStream
}

func (c *CampaignProgressWatchClient) Recv() (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}
