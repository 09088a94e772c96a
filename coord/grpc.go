package coord

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	SERVICE_NAME      = "bagel.Coord"
	methodStartQuery  = "/" + SERVICE_NAME + "/StartQuery"
	methodQueryStatus = "/" + SERVICE_NAME + "/QueryStatus"
)

// CoordServer is the client API. Requests and replies are carried as
// google.protobuf.Struct.
type CoordServer interface {
	StartQuery(ctx context.Context, q Query) (QueryResult, error)
	QueryStatus(ctx context.Context, id QueryID) (QueryResult, error)
}

var coordServiceDesc = grpc.ServiceDesc{
	ServiceName: SERVICE_NAME,
	HandlerType: (*CoordServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartQuery", Handler: startQueryHandler},
		{MethodName: "QueryStatus", Handler: queryStatusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bagel/coord",
}

func RegisterCoordServer(s grpc.ServiceRegistrar, srv CoordServer) {
	s.RegisterService(&coordServiceDesc, srv)
}

func startQueryHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		var q Query
		if err := fromStruct(req.(*structpb.Struct), &q); err != nil {
			return nil, err
		}
		res, err := srv.(CoordServer).StartQuery(ctx, q)
		if err != nil {
			return nil, err
		}
		return toStruct(res)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStartQuery}
	return interceptor(ctx, in, info, call)
}

func queryStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req interface{}) (interface{}, error) {
		var id QueryID
		if err := fromStruct(req.(*structpb.Struct), &id); err != nil {
			return nil, err
		}
		res, err := srv.(CoordServer).QueryStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		return toStruct(res)
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodQueryStatus}
	return interceptor(ctx, in, info, call)
}

// loggingInterceptor logs every client call with its outcome.
func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("method", info.FullMethod).Msg("grpc")
	return resp, err
}
