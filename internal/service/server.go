package service

import (
	"context"
	"fmt"
	"net"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"

	"github.com/opaline-lang/opaline/internal/config"
	"github.com/opaline-lang/opaline/internal/pipeline"
)

// Server serves the analysis service. Registration builds the
// grpc.ServiceDesc by hand from the parsed descriptor instead of relying
// on generated stubs.
type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// NewServer constructs the server and registers the analysis service on it.
func NewServer() (*Server, error) {
	fd, err := descriptor()
	if err != nil {
		return nil, err
	}
	svc := fd.FindService(serviceName)
	if svc == nil {
		return nil, fmt.Errorf("service %s not found in %s", serviceName, protoFileName)
	}

	sd := &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*interface{})(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
		Metadata:    fd.GetName(),
	}
	handler := &analysisHandler{}

	for _, method := range svc.GetMethods() {
		if method.IsClientStreaming() || method.IsServerStreaming() {
			continue
		}
		md := method
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: md.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				h := srv.(*analysisHandler)
				return h.handleUnary(ctx, md, dec)
			},
		})
	}

	server := grpc.NewServer()
	server.RegisterService(sd, handler)

	return &Server{grpc: server}, nil
}

// Listen binds addr. It is split from Serve so callers can read the bound
// address before blocking; tests listen on port 0.
func (s *Server) Listen(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = lis
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.lis == nil {
		return ""
	}
	return s.lis.Addr().String()
}

// Serve blocks handling connections until Stop is called.
func (s *Server) Serve() error {
	if s.lis == nil {
		return fmt.Errorf("server is not listening")
	}
	return s.grpc.Serve(s.lis)
}

// Stop drains in-flight calls and shuts the server down.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// analysisHandler runs RPCs against the local pipeline.
type analysisHandler struct{}

func (h *analysisHandler) handleUnary(ctx context.Context, md *desc.MethodDescriptor, dec func(interface{}) error) (interface{}, error) {
	inMsg := dynamic.NewMessage(md.GetInputType())
	if err := dec(inMsg); err != nil {
		return nil, err
	}

	switch md.GetName() {
	case methodCheck:
		return h.check(ctx, md, inMsg)
	}
	return nil, fmt.Errorf("method %s not implemented", md.GetName())
}

func (h *analysisHandler) check(ctx context.Context, md *desc.MethodDescriptor, in *dynamic.Message) (interface{}, error) {
	pctx := pipeline.NewPipelineContext().WithContext(ctx)
	for i, doc := range documentRows(in) {
		name := doc.name
		if name == "" {
			name = fmt.Sprintf("document-%d%s", i+1, config.DocumentFileExt)
		}
		pctx.WithSource(name, []byte(doc.content))
	}

	// The daemon never touches an archive; drift checking stays a local
	// concern of whoever owns the archive file.
	result := pipeline.Check(pctx, "")
	if len(result.Errors) > 0 {
		return nil, result.Errors[0]
	}

	out := dynamic.NewMessage(md.GetOutputType())
	if result.Report != nil {
		out.SetFieldByName("session_id", result.Report.SessionID)
	}

	diagMD := md.GetOutputType().FindFieldByName("diagnostics").GetMessageType()
	var diags []interface{}
	for _, d := range result.Collector.Errors() {
		row := dynamic.NewMessage(diagMD)
		row.SetFieldByName("code", string(d.Code))
		row.SetFieldByName("file", d.File)
		row.SetFieldByName("line", int32(d.Token.Line))
		row.SetFieldByName("column", int32(d.Token.Column))
		row.SetFieldByName("message", d.Message)
		diags = append(diags, row)
	}
	if len(diags) > 0 {
		out.SetFieldByName("diagnostics", diags)
	}

	bindMD := md.GetOutputType().FindFieldByName("bindings").GetMessageType()
	var binds []interface{}
	if result.Report != nil {
		for _, b := range result.Report.Bindings {
			row := dynamic.NewMessage(bindMD)
			row.SetFieldByName("decl", b.Decl)
			row.SetFieldByName("key", b.Key)
			row.SetFieldByName("underlying", b.Underlying)
			row.SetFieldByName("capabilities", b.Caps)
			binds = append(binds, row)
		}
	}
	if len(binds) > 0 {
		out.SetFieldByName("bindings", binds)
	}

	return out, nil
}

type wireDocument struct {
	name    string
	content string
}

func documentRows(in *dynamic.Message) []wireDocument {
	rows, ok := in.GetFieldByName("documents").([]interface{})
	if !ok {
		return nil
	}
	docs := make([]wireDocument, 0, len(rows))
	for _, r := range rows {
		dm, ok := r.(*dynamic.Message)
		if !ok {
			continue
		}
		docs = append(docs, wireDocument{
			name:    stringField(dm, "name"),
			content: stringField(dm, "content"),
		})
	}
	return docs
}
