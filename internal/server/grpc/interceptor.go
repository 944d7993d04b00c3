package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/survivalcodex/codex/internal/common"
	pb "github.com/survivalcodex/codex/internal/proto"
	"github.com/survivalcodex/codex/internal/server/auth"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// publicMethods never look at the access token. The client keeps sending its
// last token, which may be expired, to RefreshToken.
var publicMethods = map[string]bool{
	pb.FullMethod(pb.MethodPing):         true,
	pb.FullMethod(pb.MethodSignUp):       true,
	pb.FullMethod(pb.MethodSignIn):       true,
	pb.FullMethod(pb.MethodSignInOAuth):  true,
	pb.FullMethod(pb.MethodRefreshToken): true,
	pb.FullMethod(pb.MethodSignOut):      true,
}

// anonymousMethods accept a missing token; the row service decides whether
// the collection is readable without one.
var anonymousMethods = map[string]bool{
	pb.FullMethod(pb.MethodSelect): true,
}

func userIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(userIDKey).(string)
	return uid
}

func accessTokenFromContext(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	accessToken := accessTokenFromContext(ctx)
	if accessToken == "" {
		if anonymousMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		// The client refreshes only on this exact message.
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, common.ErrInvalidToken.Error())
	}

	return handler(context.WithValue(ctx, userIDKey, userID), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "rpc",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}
