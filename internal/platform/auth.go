package platform

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the daemon knows about itself, extracted from the
// instance token the operator pasted into the config. The token is issued
// and verified by the backend; the daemon only reads its claims, it never
// validates the signature (it does not hold the signing key).
type Identity struct {
	UserID     int64
	InstanceID string
}

// ParseToken extracts the identity claims from an instance bearer token.
func ParseToken(token string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse instance token: %w", err)
	}

	userID, ok := claims["userId"].(float64)
	if !ok {
		return nil, fmt.Errorf("instance token missing userId claim")
	}
	instanceID, ok := claims["instanceId"].(string)
	if !ok || instanceID == "" {
		return nil, fmt.Errorf("instance token missing instanceId claim")
	}
	return &Identity{UserID: int64(userID), InstanceID: instanceID}, nil
}
