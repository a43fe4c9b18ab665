package asr

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/rbright/lectern/internal/audio"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type recognizerService interface {
	recognize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
}

var recognizerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*recognizerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lectern/asr/v1/recognizer.proto",
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(recognizerService).recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecognizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(recognizerService).recognize(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a local Recognizer over gRPC so another host can use it as
// a grpc backend.
type Server struct {
	recognizer Recognizer
	logger     *slog.Logger
}

// Register installs the recognizer and health services on s.
func Register(s *grpc.Server, recognizer Recognizer, logger *slog.Logger) *health.Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s.RegisterService(&recognizerServiceDesc, &Server{recognizer: recognizer, logger: logger})

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)
	return healthServer
}

func (s *Server) recognize(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	pcm, rate, err := audio.DecodeWAVBytes(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	req := Request{PCM: pcm, SampleRate: rate}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(metaPrompt); len(values) > 0 {
			req.Prompt = values[0]
		}
		if values := md.Get(metaOffsetMS); len(values) > 0 {
			if ms, err := strconv.ParseInt(values[0], 10, 64); err == nil && ms > 0 {
				req.Offset = time.Duration(ms) * time.Millisecond
			}
		}
	}

	text, err := s.recognizer.Recognize(ctx, req)
	switch {
	case errors.Is(err, ErrEmptyTranscript):
		return wrapperspb.String(""), nil
	case err != nil:
		s.logger.Error("asr serve recognize failed", "error", err.Error())
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(text), nil
}
