package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "codex.v1.Codex"

const (
	MethodPing            = "Ping"
	MethodSignUp          = "SignUp"
	MethodSignIn          = "SignIn"
	MethodSignInOAuth     = "SignInOAuth"
	MethodRefreshToken    = "RefreshToken"
	MethodSignOut         = "SignOut"
	MethodSelect          = "Select"
	MethodInsert          = "Insert"
	MethodUpsert          = "Upsert"
	MethodUpdate          = "Update"
	MethodDelete          = "Delete"
	MethodAvatarUploadURL = "AvatarUploadURL"
)

// FullMethod returns the "/service/method" path used on the wire and in
// grpc.UnaryServerInfo.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type CodexServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignUp(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignInOAuth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignOut(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Select(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Insert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Upsert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AvatarUploadURL(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedCodexServer can be embedded to get forward-compatible servers.
type UnimplementedCodexServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedCodexServer) Ping(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodPing)
}
func (UnimplementedCodexServer) SignUp(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSignUp)
}
func (UnimplementedCodexServer) SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSignIn)
}
func (UnimplementedCodexServer) SignInOAuth(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSignInOAuth)
}
func (UnimplementedCodexServer) RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodRefreshToken)
}
func (UnimplementedCodexServer) SignOut(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSignOut)
}
func (UnimplementedCodexServer) Select(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodSelect)
}
func (UnimplementedCodexServer) Insert(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodInsert)
}
func (UnimplementedCodexServer) Upsert(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodUpsert)
}
func (UnimplementedCodexServer) Update(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodUpdate)
}
func (UnimplementedCodexServer) Delete(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodDelete)
}
func (UnimplementedCodexServer) AvatarUploadURL(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodAvatarUploadURL)
}

type unaryCall func(CodexServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CodexServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CodexServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CodexServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, CodexServer.Ping),
		unary(MethodSignUp, CodexServer.SignUp),
		unary(MethodSignIn, CodexServer.SignIn),
		unary(MethodSignInOAuth, CodexServer.SignInOAuth),
		unary(MethodRefreshToken, CodexServer.RefreshToken),
		unary(MethodSignOut, CodexServer.SignOut),
		unary(MethodSelect, CodexServer.Select),
		unary(MethodInsert, CodexServer.Insert),
		unary(MethodUpsert, CodexServer.Upsert),
		unary(MethodUpdate, CodexServer.Update),
		unary(MethodDelete, CodexServer.Delete),
		unary(MethodAvatarUploadURL, CodexServer.AvatarUploadURL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "codex/v1/codex.proto",
}

func RegisterCodexServer(s grpc.ServiceRegistrar, srv CodexServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CodexClient invokes codex.v1.Codex methods with typed messages.
type CodexClient struct {
	cc grpc.ClientConnInterface
}

func NewCodexClient(cc grpc.ClientConnInterface) *CodexClient {
	return &CodexClient{cc: cc}
}

// Invoke encodes in, calls method and decodes the reply into out (which may
// be nil when the reply is ignored).
func (c *CodexClient) Invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	reply := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, reply, opts...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return FromStruct(reply, out)
}
