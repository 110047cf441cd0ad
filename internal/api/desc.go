// Package api exposes the engine to local presentation layers over gRPC.
//
// The service is described by hand instead of generated from a .proto file:
// every unary method takes and returns a google.protobuf.Struct, and
// WatchEvents streams one Struct per bus event.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "simchat.v1.EngineService"

// Unary method names.
const (
	MethodStatus              = "Status"
	MethodConnect             = "Connect"
	MethodDisconnect          = "Disconnect"
	MethodListContacts        = "ListContacts"
	MethodFetchContacts       = "FetchContacts"
	MethodFetchMembers        = "FetchMembers"
	MethodSelectConversation  = "SelectConversation"
	MethodMessages            = "Messages"
	MethodSendMessage         = "SendMessage"
	MethodCreateGroup         = "CreateGroup"
	MethodListNotifications   = "ListNotifications"
	MethodAcceptRequest       = "AcceptRequest"
	MethodRejectRequest       = "RejectRequest"
	MethodDismissNotification = "DismissNotification"
	MethodClearNotifications  = "ClearNotifications"
	MethodRequestFriend       = "RequestFriend"
	MethodRequestJoin         = "RequestJoin"
	MethodSignOut             = "SignOut"
)

// MethodWatchEvents is the server-streaming event method.
const MethodWatchEvents = "WatchEvents"

var unaryMethods = []string{
	MethodStatus,
	MethodConnect,
	MethodDisconnect,
	MethodListContacts,
	MethodFetchContacts,
	MethodFetchMembers,
	MethodSelectConversation,
	MethodMessages,
	MethodSendMessage,
	MethodCreateGroup,
	MethodListNotifications,
	MethodAcceptRequest,
	MethodRejectRequest,
	MethodDismissNotification,
	MethodClearNotifications,
	MethodRequestFriend,
	MethodRequestJoin,
	MethodSignOut,
}

// EngineServer is implemented by Service. It is the HandlerType of
// ServiceDesc.
type EngineServer interface {
	Invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc registers an EngineServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EngineServer)(nil),
	Methods:     methodDescs(),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchEvents,
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "simchat/v1/engine.proto",
}

// Register attaches srv to s.
func Register(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func methodDescs() []grpc.MethodDesc {
	descs := make([]grpc.MethodDesc, 0, len(unaryMethods))
	for _, name := range unaryMethods {
		descs = append(descs, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name),
		})
	}
	return descs
}

func unaryHandler(method string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(EngineServer)
		if interceptor == nil {
			return server.Invoke(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return server.Invoke(ctx, method, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EngineServer).WatchEvents(in, stream)
}
