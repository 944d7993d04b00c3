// Package grpc serves the codex.v1.Codex service: account methods plus the
// generic row methods the client's remote gateway speaks.
package grpc

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"

	"github.com/survivalcodex/codex/internal/logging"
	pb "github.com/survivalcodex/codex/internal/proto"
	"github.com/survivalcodex/codex/internal/server/models"
)

type UserService interface {
	SignUp(ctx context.Context, email, password, name string) (*models.TokenPair, error)
	SignIn(ctx context.Context, email, password string) (*models.TokenPair, error)
	SignInOAuth(ctx context.Context, provider, idToken string) (*models.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// RowService runs collection operations on behalf of uid. An empty uid means
// the caller sent no access token.
type RowService interface {
	Select(ctx context.Context, uid string, q models.Query) ([]models.Row, error)
	Insert(ctx context.Context, uid, collection string, rows []models.Row) ([]models.Row, error)
	Upsert(ctx context.Context, uid, collection string, rows []models.Row, onConflict []string) ([]models.Row, error)
	Update(ctx context.Context, uid, collection string, filter, patch models.Row) (int, error)
	Delete(ctx context.Context, uid, collection string, filter models.Row) (int, error)
}

type AvatarService interface {
	UploadURL(ctx context.Context, uid, contentType string) (*models.UploadTicket, error)
}

type GRPCServer struct {
	pb.UnimplementedCodexServer
	address   string
	users     UserService
	rows      RowService
	avatars   AvatarService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, us UserService, rs RowService, as AvatarService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		rows:      rs,
		avatars:   as,
		jwtSecret: []byte(secretKey),
	}
}

// Server builds a grpc.Server with the interceptors installed and the
// service registered.
func (s *GRPCServer) Server() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	pb.RegisterCodexServer(srv, s)
	return srv
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.Server()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
