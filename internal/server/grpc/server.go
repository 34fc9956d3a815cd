package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/triox/internal/logging"
	pb "github.com/dmitrijs2005/triox/internal/proto"
	"github.com/dmitrijs2005/triox/internal/server/auth"
	"google.golang.org/grpc"
)

// AccountDeleter is the account operation exposed over gRPC.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, session auth.Session, candidate string) error
}

// RevocationChecker reports whether an access token was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type GRPCServer struct {
	address      string
	accounts     AccountDeleter
	revocations  RevocationChecker
	logger       logging.Logger
	jwtSecret    []byte
	maskNotFound bool
}

// NewGRPCServer builds the server. With maskNotFound set, a missing account
// is reported to callers exactly like a wrong password.
func NewGRPCServer(a string, l logging.Logger, accounts AccountDeleter, revocations RevocationChecker, secretKey string, maskNotFound bool) *GRPCServer {
	return &GRPCServer{
		address:      a,
		logger:       l.With("module", "grpc_server"),
		accounts:     accounts,
		revocations:  revocations,
		jwtSecret:    []byte(secretKey),
		maskNotFound: maskNotFound,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	pb.RegisterAccountServiceServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
