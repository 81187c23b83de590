package admitcommon

// OperatorID identifies an organizer-side caller. It is threaded explicitly
// through every organizer-facing operation; authorization is never derived
// from ambient state.
type OperatorID string

// TokenUse discriminates the payload shape carried by a signed token.
type TokenUse string

const (
	// TicketTokenUse marks an attendee ticket credential.
	TicketTokenUse TokenUse = "ticket"
	// ScannerTokenUse marks a checkpoint device credential.
	ScannerTokenUse TokenUse = "scanner"
	// IdentityTokenUse marks an organizer identity token.
	IdentityTokenUse TokenUse = "identity"
)

// TokenVersion versions the token payload shape.
type TokenVersion string

const TokenVersionV0_1 TokenVersion = "0.1"

// ServerVersion is the admitd build version string.
const ServerVersion = "0.1.0"

// ApiVersion is the wire API version; clients announce theirs in the
// X-AdmitAPI-Version header.
const ApiVersion = "0.1.0"

// KeyStatus is the lifecycle status of an event key pair.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRevoked KeyStatus = "revoked"
)

// ScannerStatus is the stored lifecycle status of a scanner record. Expired is
// a derived status: a record whose stored status is Active but whose credential
// expiry has passed is treated as expired for conflict resolution, it is never
// written to the store.
type ScannerStatus string

const (
	ScannerStatusActive  ScannerStatus = "active"
	ScannerStatusClosed  ScannerStatus = "closed"
	ScannerStatusRevoked ScannerStatus = "revoked"
	ScannerStatusExpired ScannerStatus = "expired"
)

// AttendanceMode describes how a ticket holder attends the event.
type AttendanceMode string

const (
	AttendanceInPerson AttendanceMode = "in_person"
	AttendanceVirtual  AttendanceMode = "virtual"
)
