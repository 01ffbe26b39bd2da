package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksSensitiveMetadata(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		ActorRole:  "Sub_Admin",
		Action:     "Carnet.Signed",
		EntityType: "carnet_assignment",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"parent_email": "parent@example.com",
			"type":         "standard",
		},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	stored := repo.entries[0]
	require.Equal(t, "carnet.signed", stored.Action)
	require.Equal(t, "sub_admin", stored.ActorRole)
	require.Equal(t, "***", stored.Metadata["parent_email"])
	require.Equal(t, "standard", stored.Metadata["type"])
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		EntityType: "carnet_assignment",
	})
	require.Error(t, err)
	require.Empty(t, repo.entries)
}

func TestActivityServiceRecordDefaultsActorRole(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    0,
		Action:     "carnet.promoted",
		EntityType: "carnet_assignment",
	})
	require.NoError(t, err)
	require.Equal(t, "system", repo.entries[0].ActorRole)
}

func ptrUint(v uint) *uint {
	return &v
}
