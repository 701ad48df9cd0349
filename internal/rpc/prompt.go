// ABOUTME: gRPC PromptService exposing scan, reconcile and render to other services
// ABOUTME: Messages are google.protobuf.Struct so no generated stubs are needed

// Package rpc serves the template pipeline over gRPC. Requests and
// responses are google.protobuf.Struct values with the same field names as
// the HTTP API's JSON.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/assistant-console/internal/prompt"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "assistantconsole.PromptService"

// PromptServer is the server API for PromptService.
type PromptServer interface {
	Scan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// pipelineRequest is the union of every method's request fields.
type pipelineRequest struct {
	Content   string            `json:"content"`
	Variables []prompt.Variable `json:"variables"`
	Values    map[string]string `json:"values"`
}

type scanResponse struct {
	Placeholders []string `json:"placeholders"`
}

type reconcileResponse struct {
	Variables []prompt.Variable `json:"variables"`
	Stale     []string          `json:"stale"`
}

type renderResponse struct {
	Text    string                   `json:"text"`
	Missing []string                 `json:"missing"`
	Errors  []prompt.ValidationError `json:"errors"`
}

// Server implements PromptServer over the prompt package.
type Server struct {
	logger *slog.Logger
}

var _ PromptServer = (*Server)(nil)

// NewServer creates a PromptService implementation.
func NewServer() *Server {
	return &Server{logger: slog.Default().With("component", "rpc")}
}

// Scan returns the distinct placeholder names in content.
func (s *Server) Scan(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	return encodeResponse(scanResponse{Placeholders: prompt.Scan(req.Content)})
}

// Reconcile returns the registry a save would produce, plus stale names.
func (s *Server) Reconcile(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	vars := prompt.Reconcile(req.Content, req.Variables)
	return encodeResponse(reconcileResponse{Variables: vars, Stale: prompt.Stale(req.Content, vars)})
}

// Render fills content's placeholders from values and the variable
// defaults, reporting missing and ill-typed values.
func (s *Server) Render(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	text, report := prompt.RenderStrict(req.Content, req.Variables, req.Values)
	if !report.OK() {
		s.logger.Debug("render reported problems", "missing", report.Missing, "errors", len(report.Errors))
	}
	return encodeResponse(renderResponse{Text: text, Missing: report.Missing, Errors: report.Errors})
}

// decodeRequest maps a Struct onto pipelineRequest through its JSON form.
func decodeRequest(in *structpb.Struct) (*pipelineRequest, error) {
	var req pipelineRequest
	if in == nil {
		return &req, nil
	}
	raw, err := in.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encoding request: %v", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if errs := prompt.ValidateVariables(req.Variables); len(errs) > 0 {
		return nil, status.Errorf(codes.InvalidArgument, "invalid variables: %s", errs[0].Error())
	}
	return &req, nil
}

func encodeResponse(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

func unaryHandler(call func(PromptServer, context.Context, *structpb.Struct) (*structpb.Struct, error), method string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PromptServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(PromptServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes PromptService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PromptServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(PromptServer.Scan, "Scan"),
		unaryHandler(PromptServer.Reconcile, "Reconcile"),
		unaryHandler(PromptServer.Render, "Render"),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "assistantconsole/prompt.proto",
}

// Register adds PromptService and the standard health service to s.
// The returned health server reports PromptService as serving.
func Register(s *grpc.Server, srv PromptServer) *health.Server {
	s.RegisterService(&ServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// Client calls PromptService on a connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in any, out any) error {
	req, err := encodeResponse(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return err
	}
	raw, err := resp.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	return nil
}

// Scan returns the placeholders in content.
func (c *Client) Scan(ctx context.Context, content string) ([]string, error) {
	var out scanResponse
	if err := c.invoke(ctx, "Scan", pipelineRequest{Content: content}, &out); err != nil {
		return nil, err
	}
	return out.Placeholders, nil
}

// Reconcile returns the reconciled registry and its stale names.
func (c *Client) Reconcile(ctx context.Context, content string, vars []prompt.Variable) ([]prompt.Variable, []string, error) {
	var out reconcileResponse
	if err := c.invoke(ctx, "Reconcile", pipelineRequest{Content: content, Variables: vars}, &out); err != nil {
		return nil, nil, err
	}
	return out.Variables, out.Stale, nil
}

// Render renders content and reports problems with the values.
func (c *Client) Render(ctx context.Context, content string, vars []prompt.Variable, values map[string]string) (string, prompt.RenderReport, error) {
	var out renderResponse
	if err := c.invoke(ctx, "Render", pipelineRequest{Content: content, Variables: vars, Values: values}, &out); err != nil {
		return "", prompt.RenderReport{}, err
	}
	return out.Text, prompt.RenderReport{Missing: out.Missing, Errors: out.Errors}, nil
}
