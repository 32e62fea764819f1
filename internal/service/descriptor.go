// Package service exposes the resolution pipeline over gRPC. The wire
// format lives in analysis.proto, embedded here and parsed at startup;
// both ends build their messages dynamically from the same descriptor,
// so there is no generated code to keep in sync with the proto.
package service

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

//go:embed analysis.proto
var analysisProto string

const (
	protoFileName = "analysis.proto"
	serviceName   = "opaline.Analysis"
	methodCheck   = "Check"
)

// methodCheckPath is the RPC path as grpc.Invoke expects it.
const methodCheckPath = "/" + serviceName + "/" + methodCheck

var (
	descOnce sync.Once
	descFD   *desc.FileDescriptor
	descErr  error
)

func descriptor() (*desc.FileDescriptor, error) {
	descOnce.Do(func() {
		parser := protoparse.Parser{
			Accessor: protoparse.FileContentsFromMap(map[string]string{
				protoFileName: analysisProto,
			}),
		}
		fds, err := parser.ParseFiles(protoFileName)
		if err != nil {
			descErr = fmt.Errorf("failed to parse proto: %w", err)
			return
		}
		descFD = fds[0]
	})
	return descFD, descErr
}

// checkMethod returns the descriptor of the Check RPC.
func checkMethod() (*desc.MethodDescriptor, error) {
	fd, err := descriptor()
	if err != nil {
		return nil, err
	}
	svc := fd.FindService(serviceName)
	if svc == nil {
		return nil, fmt.Errorf("service %s not found in %s", serviceName, protoFileName)
	}
	method := svc.FindMethodByName(methodCheck)
	if method == nil {
		return nil, fmt.Errorf("service %s does not declare %s", serviceName, methodCheck)
	}
	return method, nil
}
