package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/triox/internal/common"
	"github.com/dmitrijs2005/triox/internal/server/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DeleteAccount deletes the account of the authenticated caller. The request
// value is the caller's current password.
func (s *GRPCServer) DeleteAccount(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {

	session, err := auth.SessionFromContext(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	s.logger.Info(ctx, "Delete account request", "username", session.UserName)

	if err := s.accounts.DeleteAccount(ctx, *session, req.GetValue()); err != nil {
		return nil, s.toStatus(err)
	}

	s.logger.Info(ctx, "Account deleted", "username", session.UserName)
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) toStatus(err error) error {
	switch {
	case errors.Is(err, common.ErrAccountNotFound):
		if s.maskNotFound {
			return status.Error(codes.Unauthenticated, common.ErrInvalidCredentials.Error())
		}
		return status.Error(codes.NotFound, common.ErrAccountNotFound.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, common.ErrInvalidCredentials.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
