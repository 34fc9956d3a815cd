package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound and outbound requests.
const AccessTokenHeaderName = "access_token"

// UserNamespacePrefix is the root under which every account's owned data
// lives in object storage: users/<username>/...
const UserNamespacePrefix = "users"
