// Package config loads runtime configuration for the triox client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. TRIOX_SERVER_ADDR, TRIOX_ACCESS_TOKEN and TRIOX_TIMEOUT.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string    address:port of the backend gRPC endpoint
//	-token       access token of the session whose account is deleted
//	-timeout int request timeout in seconds
//	-yes         skip the confirmation prompt
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "access_token": "eyJ...",
//	  "timeout": "10s"
//	}
package config
