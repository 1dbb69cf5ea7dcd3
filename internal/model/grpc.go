package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	generatorService = "draftsmith.generator.v1.Generator"
	generateMethod   = "/" + generatorService + "/Generate"
)

var errConnectionShutdown = errors.New("connection shutdown")

var generateStreamDesc = &grpc.StreamDesc{
	StreamName:    "Generate",
	ServerStreams: true,
}

// GeneratorServiceDesc describes the Generate server-streaming method. The
// request is a Struct with "prompt", "system" and "model" string fields;
// each response message is one text fragment.
var GeneratorServiceDesc = grpc.ServiceDesc{
	ServiceName: generatorService,
	HandlerType: (*Streamer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Generate",
		Handler:       generateHandler,
		ServerStreams: true,
	}},
	Metadata: "draftsmith/generator/v1/generator.proto",
}

// RegisterGenerator serves st over gRPC on s.
func RegisterGenerator(s *grpc.Server, st Streamer) {
	s.RegisterService(&GeneratorServiceDesc, st)
}

func generateHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	fields := req.GetFields()
	g := Generation{
		Prompt: fields["prompt"].GetStringValue(),
		System: fields["system"].GetStringValue(),
		Model:  fields["model"].GetStringValue(),
	}
	if g.Prompt == "" {
		return status.Error(codes.InvalidArgument, "prompt is required")
	}

	for frag, err := range srv.(Streamer).Stream(stream.Context(), g) {
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.SendMsg(wrapperspb.String(frag)); err != nil {
			return err
		}
	}
	return nil
}

// GRPCStreamer streams completions from a remote generator service.
type GRPCStreamer struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewGRPCStreamer builds a client for addr. No network I/O happens until the
// first call or WaitForReady. Extra options are appended after the defaults.
func NewGRPCStreamer(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCStreamer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	kacp := keepalive.ClientParameters{
		Time:                2 * time.Minute,
		Timeout:             10 * time.Second,
		PermitWithoutStream: false,
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator client for %s: %w", addr, err)
	}
	return &GRPCStreamer{conn: conn, addr: addr, logger: logger}, nil
}

// WaitForReady blocks until the connection is ready or ctx ends.
func (c *GRPCStreamer) WaitForReady(ctx context.Context) error {
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			c.conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("generator at %s did not change state from %s", c.addr, state)
		}
	}
}

// Close closes the connection.
func (c *GRPCStreamer) Close() error {
	return c.conn.Close()
}

// Stream implements Streamer.
func (c *GRPCStreamer) Stream(ctx context.Context, g Generation) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := structpb.NewStruct(map[string]any{
			"prompt": g.Prompt,
			"system": g.System,
			"model":  g.Model,
		})
		if err != nil {
			yield("", fmt.Errorf("encode generation: %w", err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := c.conn.NewStream(ctx, generateStreamDesc, generateMethod)
		if err != nil {
			yield("", fmt.Errorf("%w: %s", ErrRequestFailed, status.Convert(err).Message()))
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield("", fmt.Errorf("%w: %s", ErrRequestFailed, status.Convert(err).Message()))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield("", fmt.Errorf("%w: %s", ErrRequestFailed, status.Convert(err).Message()))
			return
		}

		for {
			frag := new(wrapperspb.StringValue)
			err := stream.RecvMsg(frag)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if status.Code(err) == codes.Canceled && ctx.Err() != nil {
					return
				}
				c.logger.Warn("Generator stream error", "error", err, "address", c.addr)
				yield("", fmt.Errorf("%w: %s", ErrStream, status.Convert(err).Message()))
				return
			}
			if !yield(frag.GetValue(), nil) {
				return
			}
		}
	}
}

var _ Streamer = (*GRPCStreamer)(nil)
