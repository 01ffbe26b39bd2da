package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

// Sentinel errors surfaced by the signature ledger.
var (
	ErrAlreadySigned     = errors.New("carnet is already signed for this type and level")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrNotCompleted      = errors.New("carnet is not completed by the responsible teachers")
	ErrSemester2Required = errors.New("end-of-year signing requires the active semester to be 2")
)

// SignGate carries the pre-computed gating inputs for a sign attempt.
type SignGate struct {
	// Bypassed skips completion and semester gating entirely.
	Bypassed bool
	// Eligible is the evaluator's verdict for the requested signature type.
	Eligible bool
	// ActiveSemester is the ledger's current semester (1 or 2).
	ActiveSemester int
}

// SignatureLedger is the append-only record of signing events per carnet,
// keyed by (type, level).
type SignatureLedger struct {
	signatures repository.SignatureRepository
	logger     zerolog.Logger
	now        func() time.Time
}

// NewSignatureLedger constructs the ledger.
func NewSignatureLedger(signatures repository.SignatureRepository, logger zerolog.Logger) *SignatureLedger {
	return &SignatureLedger{
		signatures: signatures,
		logger:     logger.With().Str("component", "signature_ledger").Logger(),
		now:        time.Now,
	}
}

// Sign appends a signature after checking the gate. The insert is
// conditional, so two concurrent calls cannot both succeed.
func (l *SignatureLedger) Sign(ctx context.Context, assignmentID, signerID uint, sigType models.SignatureType, level string, gate SignGate) (models.Signature, error) {
	if !gate.Bypassed {
		if !gate.Eligible {
			return models.Signature{}, ErrNotCompleted
		}
		if sigType == models.SignatureTypeEndOfYear && gate.ActiveSemester != 2 {
			return models.Signature{}, ErrSemester2Required
		}
	}

	signature := models.Signature{
		AssignmentID: assignmentID,
		SignerID:     signerID,
		Type:         sigType,
		Level:        level,
		SignedAt:     l.now(),
	}

	if err := l.signatures.CreateIfAbsent(ctx, &signature); err != nil {
		if errors.Is(err, repository.ErrSignatureExists) {
			return models.Signature{}, ErrAlreadySigned
		}
		return models.Signature{}, err
	}

	l.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("signer_id", signerID).
		Str("type", string(sigType)).
		Str("level", level).
		Msg("carnet signed")

	return signature, nil
}

// Unsign removes the currently valid signature for (assignment, type, level).
// Any authorized actor may unsign, regardless of who signed.
func (l *SignatureLedger) Unsign(ctx context.Context, assignmentID uint, sigType models.SignatureType, level string) error {
	if err := l.signatures.Delete(ctx, assignmentID, sigType, level); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSignatureNotFound
		}
		return err
	}

	l.logger.Info().
		Uint("assignment_id", assignmentID).
		Str("type", string(sigType)).
		Str("level", level).
		Msg("carnet signature removed")

	return nil
}

// ListForAssignment returns every live signature of the carnet.
func (l *SignatureLedger) ListForAssignment(ctx context.Context, assignmentID uint) ([]models.Signature, error) {
	return l.signatures.ListForAssignment(ctx, assignmentID)
}
