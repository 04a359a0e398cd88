// Package grpc carries the authenticated member identity between the site's
// HTTP layer and backend gRPC services via request metadata.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// MetadataKeyUserID is the metadata key carrying the authenticated uid.
const MetadataKeyUserID = "x-siteauth-user-id"

// UserIDFromContext extracts the authenticated uid from incoming metadata.
// Returns "" for unauthenticated requests.
func UserIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(MetadataKeyUserID); len(values) > 0 {
		return values[0]
	}
	return ""
}

// UserIDToOutgoingContext attaches the uid to outgoing metadata so downstream
// services see the same identity.
func UserIDToOutgoingContext(ctx context.Context, uid string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyUserID, uid)
}

// IsAuthenticated reports whether the context carries a uid.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
