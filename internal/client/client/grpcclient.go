// Package client talks to the triox account service over gRPC.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/triox/internal/common"
	pb "github.com/dmitrijs2005/triox/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      pb.AccountServiceClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	return invoker(withAccessToken(ctx, s.accessToken), method, req, reply, cc, opts...)
}

// NewAccountClient connects to endpointURL and authenticates every call
// with accessToken.
func NewAccountClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewAccountServiceClient(conn)
	return c, nil
}

// DeleteAccount asks the server to delete the account of the current
// session, proving ownership with password.
func (s *GRPCClient) DeleteAccount(ctx context.Context, password string) error {
	if _, err := s.client.DeleteAccount(ctx, wrapperspb.String(password)); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.NotFound:
		return ErrAccountNotFound
	case codes.Unauthenticated:
		if st.Message() == common.ErrInvalidCredentials.Error() {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
