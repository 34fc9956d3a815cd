package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/triox/internal/common"
	pb "github.com/dmitrijs2005/triox/internal/proto"
	"github.com/dmitrijs2005/triox/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protectedMethods require a valid, unrevoked access token.
var protectedMethods = map[string]bool{
	pb.AccountService_DeleteAccount_FullMethodName: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	session, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		s.logger.Debug(ctx, "rejected access token", "method", info.FullMethod, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, session.TokenID)
		if err != nil {
			s.logger.Error(ctx, "revocation check failed", "token_id", session.TokenID, "error", err)
			return nil, status.Error(codes.Internal, "internal error")
		}
		if revoked {
			return nil, status.Error(codes.Unauthenticated, common.ErrTokenRevoked.Error())
		}
	}

	return handler(auth.WithSession(ctx, session), req)
}
