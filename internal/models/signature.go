package models

import "time"

// SignatureType distinguishes the mid-cycle signature from the cycle-closing one.
type SignatureType string

// Supported signature types.
const (
	SignatureTypeStandard  SignatureType = "standard"
	SignatureTypeEndOfYear SignatureType = "end_of_year"
)

// Valid reports whether the value is a known signature type.
func (t SignatureType) Valid() bool {
	return t == SignatureTypeStandard || t == SignatureTypeEndOfYear
}

// Signature is one currently valid signing event. The unique index enforces
// at most one signature per (assignment, type, level); unsigning deletes the
// row and re-signing re-creates it.
type Signature struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	AssignmentID uint          `gorm:"not null;uniqueIndex:idx_signature_assignment_type_level" json:"assignment_id"`
	SignerID     uint          `gorm:"not null;index" json:"signer_id"`
	Type         SignatureType `gorm:"size:16;not null;uniqueIndex:idx_signature_assignment_type_level" json:"type"`
	Level        string        `gorm:"size:16;uniqueIndex:idx_signature_assignment_type_level" json:"level"`
	SignedAt     time.Time     `gorm:"not null;index" json:"signed_at"`
	CreatedAt    time.Time     `json:"created_at"`
}
