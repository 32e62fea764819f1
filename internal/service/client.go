package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/opaline-lang/opaline/internal/diagnostics"
	"github.com/opaline-lang/opaline/internal/opaque"
	"github.com/opaline-lang/opaline/internal/token"
)

// Client talks to a running analysis daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon at target. The daemon is loopback
// infrastructure, so the connection is plaintext.
func Dial(target string) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// CheckResult is the daemon's answer, decoded back into engine types.
type CheckResult struct {
	SessionID   string
	Bindings    []opaque.ResolvedBinding
	Diagnostics []*diagnostics.DiagnosticError
}

// Check ships the documents to the daemon and returns its report.
// Documents are sent in name order so runs are reproducible.
func (c *Client) Check(ctx context.Context, sources map[string][]byte) (*CheckResult, error) {
	md, err := checkMethod()
	if err != nil {
		return nil, err
	}

	req := dynamic.NewMessage(md.GetInputType())
	docMD := md.GetInputType().FindFieldByName("documents").GetMessageType()
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]interface{}, 0, len(names))
	for _, name := range names {
		row := dynamic.NewMessage(docMD)
		row.SetFieldByName("name", name)
		row.SetFieldByName("content", string(sources[name]))
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		req.SetFieldByName("documents", rows)
	}

	resp := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, methodCheckPath, req, resp); err != nil {
		return nil, fmt.Errorf("RPC failed: %w", err)
	}
	return decodeResult(resp), nil
}

func decodeResult(resp *dynamic.Message) *CheckResult {
	out := &CheckResult{SessionID: stringField(resp, "session_id")}

	if rows, ok := resp.GetFieldByName("diagnostics").([]interface{}); ok {
		for _, r := range rows {
			dm, ok := r.(*dynamic.Message)
			if !ok {
				continue
			}
			diag := diagnostics.NewError(
				diagnostics.ErrorCode(stringField(dm, "code")),
				token.At("", intField(dm, "line"), intField(dm, "column")),
				stringField(dm, "message"),
			)
			if file := stringField(dm, "file"); file != "" {
				diag = diag.WithFile(file)
			}
			out.Diagnostics = append(out.Diagnostics, diag)
		}
	}

	if rows, ok := resp.GetFieldByName("bindings").([]interface{}); ok {
		for _, r := range rows {
			dm, ok := r.(*dynamic.Message)
			if !ok {
				continue
			}
			out.Bindings = append(out.Bindings, opaque.ResolvedBinding{
				Decl:       stringField(dm, "decl"),
				Key:        stringField(dm, "key"),
				Underlying: stringField(dm, "underlying"),
				Caps:       stringField(dm, "capabilities"),
			})
		}
	}

	return out
}

func stringField(m *dynamic.Message, name string) string {
	v, _ := m.GetFieldByName(name).(string)
	return v
}

func intField(m *dynamic.Message, name string) int {
	v, _ := m.GetFieldByName(name).(int32)
	return int(v)
}
