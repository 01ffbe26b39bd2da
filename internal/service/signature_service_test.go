package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

type memorySignatureRepo struct {
	signatures []models.Signature
	nextID     uint
}

func (m *memorySignatureRepo) CreateIfAbsent(ctx context.Context, signature *models.Signature) error {
	for _, existing := range m.signatures {
		if existing.AssignmentID == signature.AssignmentID &&
			existing.Type == signature.Type &&
			existing.Level == signature.Level {
			return repository.ErrSignatureExists
		}
	}
	m.nextID++
	signature.ID = m.nextID
	m.signatures = append(m.signatures, *signature)
	return nil
}

func (m *memorySignatureRepo) Delete(ctx context.Context, assignmentID uint, sigType models.SignatureType, level string) error {
	for i, existing := range m.signatures {
		if existing.AssignmentID == assignmentID && existing.Type == sigType && existing.Level == level {
			m.signatures = append(m.signatures[:i], m.signatures[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memorySignatureRepo) ListForAssignment(ctx context.Context, assignmentID uint) ([]models.Signature, error) {
	var out []models.Signature
	for _, existing := range m.signatures {
		if existing.AssignmentID == assignmentID {
			out = append(out, existing)
		}
	}
	return out, nil
}

func openGate() SignGate {
	return SignGate{Eligible: true, ActiveSemester: 2}
}

func TestSignTwiceReturnsAlreadySigned(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	_, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeStandard, "CE1", openGate())
	require.NoError(t, err)

	_, err = ledger.Sign(context.Background(), 1, 11, models.SignatureTypeStandard, "CE1", openGate())
	require.ErrorIs(t, err, ErrAlreadySigned)
}

func TestSignDistinctTypesAndLevelsCoexist(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	_, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeStandard, "CE1", openGate())
	require.NoError(t, err)
	_, err = ledger.Sign(context.Background(), 1, 10, models.SignatureTypeEndOfYear, "CE1", openGate())
	require.NoError(t, err)
	_, err = ledger.Sign(context.Background(), 1, 10, models.SignatureTypeStandard, "CE2", openGate())
	require.NoError(t, err)

	signatures, err := ledger.ListForAssignment(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, signatures, 3)
}

func TestSignRejectsIncompleteCarnet(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	_, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeStandard, "CE1",
		SignGate{Eligible: false, ActiveSemester: 1})
	require.ErrorIs(t, err, ErrNotCompleted)
}

func TestSignEndOfYearRequiresSemesterTwo(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	_, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeEndOfYear, "CE1",
		SignGate{Eligible: true, ActiveSemester: 1})
	require.ErrorIs(t, err, ErrSemester2Required)
}

func TestSignBypassSkipsGating(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	signature, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeEndOfYear, "CE1",
		SignGate{Bypassed: true, Eligible: false, ActiveSemester: 1})
	require.NoError(t, err)
	require.Equal(t, uint(10), signature.SignerID)
}

func TestUnsignThenResign(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())
	ledger.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	_, err := ledger.Sign(context.Background(), 1, 10, models.SignatureTypeStandard, "CE1", openGate())
	require.NoError(t, err)

	// Any authorized actor may unsign, not only the original signer.
	require.NoError(t, ledger.Unsign(context.Background(), 1, models.SignatureTypeStandard, "CE1"))

	_, err = ledger.Sign(context.Background(), 1, 12, models.SignatureTypeStandard, "CE1", openGate())
	require.NoError(t, err)

	signatures, err := ledger.ListForAssignment(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, signatures, 1)
	require.Equal(t, uint(12), signatures[0].SignerID)
}

func TestUnsignMissingSignature(t *testing.T) {
	ledger := NewSignatureLedger(&memorySignatureRepo{}, testLogger())

	err := ledger.Unsign(context.Background(), 1, models.SignatureTypeEndOfYear, "CE1")
	require.ErrorIs(t, err, ErrSignatureNotFound)
}
