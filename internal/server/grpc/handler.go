package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/survivalcodex/codex/internal/common"
	pb "github.com/survivalcodex/codex/internal/proto"
	"github.com/survivalcodex/codex/internal/server/auth"
	"github.com/survivalcodex/codex/internal/server/models"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{common.ErrInvalidCredentials, codes.Unauthenticated},
	{common.ErrInvalidToken, codes.Unauthenticated},
	{common.ErrRefreshTokenExpired, codes.Unauthenticated},
	{common.ErrTokenExpired, codes.Unauthenticated},
	{common.ErrorUnauthorized, codes.Unauthenticated},
	{common.ErrorForbidden, codes.PermissionDenied},
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorAlreadyExists, codes.AlreadyExists},
	{common.ErrorValidation, codes.InvalidArgument},
	{common.ErrorUnknownCollection, codes.InvalidArgument},
	{common.ErrorUnknownColumn, codes.InvalidArgument},
	{common.ErrorReadOnly, codes.InvalidArgument},
	{auth.ErrOAuthDisabled, codes.FailedPrecondition},
}

// toStatus maps service errors to gRPC codes. Anything unrecognised is logged
// and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}

func decode(in *structpb.Struct, dst any) error {
	if err := pb.FromStruct(in, dst); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := pb.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func tokens(p *models.TokenPair) (*structpb.Struct, error) {
	return encode(pb.Tokens{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		UserID:       p.UserID,
		Email:        p.Email,
	})
}

func result(rows []models.Row, count int) (*structpb.Struct, error) {
	if rows == nil {
		rows = []models.Row{}
	}
	return encode(pb.Result{Rows: rows, Count: count})
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(pb.Status{Status: "OK"})
}

func (s *GRPCServer) SignUp(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Credentials
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	pair, err := s.users.SignUp(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodSignUp, err)
	}

	s.logger.Info(ctx, "Registered", "user_id", pair.UserID)
	return tokens(pair)
}

func (s *GRPCServer) SignIn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Credentials
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	pair, err := s.users.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodSignIn, err)
	}
	return tokens(pair)
}

func (s *GRPCServer) SignInOAuth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.OAuthCredentials
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	pair, err := s.users.SignInOAuth(ctx, req.Provider, req.IDToken)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodSignInOAuth, err)
	}
	return tokens(pair)
}

func (s *GRPCServer) RefreshToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.RefreshRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	pair, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodRefreshToken, err)
	}
	return tokens(pair)
}

func (s *GRPCServer) SignOut(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.RefreshRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	if err := s.users.SignOut(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, pb.MethodSignOut, err)
	}
	return encode(pb.Empty{})
}

func (s *GRPCServer) Select(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Query
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	rows, err := s.rows.Select(ctx, userIDFromContext(ctx), models.Query{
		Collection: req.Collection,
		Filter:     req.Filter,
		OrderBy:    req.OrderBy,
		Desc:       req.Desc,
		Limit:      req.Limit,
	})
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodSelect, err)
	}
	return result(rows, len(rows))
}

func (s *GRPCServer) Insert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Query
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	rows, err := s.rows.Insert(ctx, userIDFromContext(ctx), req.Collection, req.Rows)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodInsert, err)
	}
	return result(rows, len(rows))
}

func (s *GRPCServer) Upsert(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Query
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	rows, err := s.rows.Upsert(ctx, userIDFromContext(ctx), req.Collection, req.Rows, req.OnConflict)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodUpsert, err)
	}
	return result(rows, len(rows))
}

func (s *GRPCServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Query
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	n, err := s.rows.Update(ctx, userIDFromContext(ctx), req.Collection, req.Filter, req.Patch)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodUpdate, err)
	}
	return result(nil, n)
}

func (s *GRPCServer) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.Query
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	n, err := s.rows.Delete(ctx, userIDFromContext(ctx), req.Collection, req.Filter)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodDelete, err)
	}
	return result(nil, n)
}

func (s *GRPCServer) AvatarUploadURL(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pb.UploadRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	t, err := s.avatars.UploadURL(ctx, userIDFromContext(ctx), req.ContentType)
	if err != nil {
		return nil, s.toStatus(ctx, pb.MethodAvatarUploadURL, err)
	}
	return encode(pb.UploadTicket{URL: t.URL, Key: t.Key, PublicURL: t.PublicURL})
}
