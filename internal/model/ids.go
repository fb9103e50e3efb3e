// Package model defines the SDK's core data types: qualified
// identities, conversation/member/app projections, the WireMessage
// tagged algebra and the inbound Event tagged algebra.
package model

import "github.com/google/uuid"

// QualifiedId identifies a user or conversation by uuid plus owning
// domain. Equality is by both fields.
type QualifiedId struct {
	ID     uuid.UUID
	Domain string
}

// Equal reports whether two QualifiedIds refer to the same entity.
func (q QualifiedId) Equal(other QualifiedId) bool {
	return q.ID == other.ID && q.Domain == other.Domain
}

func (q QualifiedId) String() string {
	return q.ID.String() + "@" + q.Domain
}

// TeamId identifies a team by uuid.
type TeamId = uuid.UUID

// CryptoClientId is the opaque client identity string
// "<userUuid>:<deviceId>@<domain>", parsed only by CryptoEngine.
type CryptoClientId string

// NewCryptoClientId builds the "<userUuid>:<deviceId>@<domain>" form.
func NewCryptoClientId(userID uuid.UUID, deviceID, domain string) CryptoClientId {
	return CryptoClientId(userID.String() + ":" + deviceID + "@" + domain)
}

// MlsGroupId is an opaque MLS group identifier, persisted
// base64-encoded in storage.
type MlsGroupId []byte
