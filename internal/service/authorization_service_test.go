package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/models"
)

type memoryClassRepo struct {
	classes      map[uint]models.ClassGroup
	links        map[uint][]models.TeacherClassLink
	supervised   map[uint][]uint
	levelsScopes map[uint][]string
}

func (m *memoryClassRepo) GetByID(ctx context.Context, id uint) (models.ClassGroup, error) {
	class, ok := m.classes[id]
	if !ok {
		return models.ClassGroup{}, gorm.ErrRecordNotFound
	}
	return class, nil
}

func (m *memoryClassRepo) LinksForClass(ctx context.Context, classID uint) ([]models.TeacherClassLink, error) {
	return m.links[classID], nil
}

func (m *memoryClassRepo) SupervisedTeacherIDs(ctx context.Context, supervisorID uint) ([]uint, error) {
	return m.supervised[supervisorID], nil
}

func (m *memoryClassRepo) LevelScopes(ctx context.Context, staffID uint) ([]string, error) {
	return m.levelsScopes[staffID], nil
}

type memoryEnrollmentRepo struct {
	enrollments []models.Enrollment
}

func (m *memoryEnrollmentRepo) ActiveForStudent(ctx context.Context, studentID uint) (models.Enrollment, error) {
	for i := len(m.enrollments) - 1; i >= 0; i-- {
		if m.enrollments[i].StudentID == studentID && m.enrollments[i].Status == models.EnrollmentStatusActive {
			return m.enrollments[i], nil
		}
	}
	return models.Enrollment{}, gorm.ErrRecordNotFound
}

func (m *memoryEnrollmentRepo) ListForStudent(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, enrollment := range m.enrollments {
		if enrollment.StudentID == studentID {
			out = append(out, enrollment)
		}
	}
	return out, nil
}

func (m *memoryEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.ID = uint(len(m.enrollments) + 1)
	m.enrollments = append(m.enrollments, *enrollment)
	return nil
}

func (m *memoryEnrollmentRepo) Update(ctx context.Context, enrollment *models.Enrollment) error {
	for i := range m.enrollments {
		if m.enrollments[i].ID == enrollment.ID {
			m.enrollments[i] = *enrollment
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type memoryBypassRepo struct {
	scopes map[uint][]models.BypassScope
}

func (m *memoryBypassRepo) ListForSubject(ctx context.Context, subjectID uint) ([]models.BypassScope, error) {
	return m.scopes[subjectID], nil
}

func classIDPtr(v uint) *uint {
	return &v
}

func scoperFixture() (*AuthorizationScoper, *memoryClassRepo, *memoryEnrollmentRepo, *memoryBypassRepo) {
	classes := &memoryClassRepo{
		classes: map[uint]models.ClassGroup{
			1: {ID: 1, Name: "CE1-A", Level: "CE1", SchoolYearID: 2},
		},
		links: map[uint][]models.TeacherClassLink{
			1: {{TeacherID: 10, ClassID: 1, Languages: []string{"ar"}}},
		},
		supervised:   map[uint][]uint{},
		levelsScopes: map[uint][]string{},
	}
	enrollments := &memoryEnrollmentRepo{
		enrollments: []models.Enrollment{
			{ID: 1, StudentID: 1, SchoolYearID: 2, ClassID: classIDPtr(1), Status: models.EnrollmentStatusActive},
		},
	}
	bypasses := &memoryBypassRepo{scopes: map[uint][]models.BypassScope{}}

	return NewAuthorizationScoper(classes, enrollments, bypasses, testLogger()), classes, enrollments, bypasses
}

func TestAuthorizeAssignedTeacher(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1, AssignedTeacherIDs: []uint{42}}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 42, assignment, student, ClassContext{Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizeClassLinkedTeacher(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1, ClassID: classIDPtr(1)}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 10, assignment, student, ClassContext{ClassID: classIDPtr(1), Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizeSupervisorOfAssignedTeacher(t *testing.T) {
	scoper, classes, _, _ := scoperFixture()
	classes.supervised[7] = []uint{42}
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1, AssignedTeacherIDs: []uint{42}}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 7, assignment, student, ClassContext{Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizeSupervisorViaEnrollmentClass(t *testing.T) {
	scoper, classes, _, _ := scoperFixture()
	classes.supervised[7] = []uint{10} // supervises the CE1-A arabic teacher
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 7, assignment, student, ClassContext{Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizeLevelScope(t *testing.T) {
	scoper, classes, _, _ := scoperFixture()
	classes.levelsScopes[8] = []string{"ce1"}
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 8, assignment, student, ClassContext{Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizePromotionAuthor(t *testing.T) {
	scoper, _, enrollments, _ := scoperFixture()
	enrollments.enrollments = nil
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1}
	student := models.Student{
		ID:    1,
		Level: "CE1",
		Promotions: []models.PromotionRecord{
			{StudentID: 1, PromotedByID: 9, ToLevel: "CE1", Date: time.Now()},
		},
	}

	err := scoper.Authorize(context.Background(), 9, assignment, student, ClassContext{Level: "CE1"})
	require.NoError(t, err)
}

func TestAuthorizeRejectsStranger(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1, AssignedTeacherIDs: []uint{42}}
	student := models.Student{ID: 1, Level: "CE1"}

	err := scoper.Authorize(context.Background(), 99, assignment, student, ClassContext{Level: "CE1"})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestGatingBypassedWhenPolicyOff(t *testing.T) {
	scoper, _, _, _ := scoperFixture()

	bypassed, err := scoper.GatingBypassed(context.Background(), 99, models.Student{ID: 1}, ClassContext{},
		GatingPolicy{RestrictSignatures: false}, models.SignatureTypeStandard)
	require.NoError(t, err)
	require.True(t, bypassed)
}

func TestGatingBypassedByTypeExemption(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	policy := GatingPolicy{RestrictSignatures: true, ExemptStandard: true}

	bypassed, err := scoper.GatingBypassed(context.Background(), 99, models.Student{ID: 1}, ClassContext{},
		policy, models.SignatureTypeStandard)
	require.NoError(t, err)
	require.True(t, bypassed)

	bypassed, err = scoper.GatingBypassed(context.Background(), 99, models.Student{ID: 1}, ClassContext{},
		policy, models.SignatureTypeEndOfYear)
	require.NoError(t, err)
	require.False(t, bypassed)
}

func TestGatingBypassedByLevelScope(t *testing.T) {
	scoper, _, _, bypasses := scoperFixture()
	bypasses.scopes[9] = []models.BypassScope{
		{SubjectID: 9, Type: models.BypassScopeLevel, Value: "CE1"},
	}
	policy := GatingPolicy{RestrictSignatures: true}

	bypassed, err := scoper.GatingBypassed(context.Background(), 9, models.Student{ID: 1}, ClassContext{Level: "ce1"},
		policy, models.SignatureTypeStandard)
	require.NoError(t, err)
	require.True(t, bypassed, "LEVEL scope matches case-insensitively")

	bypassed, err = scoper.GatingBypassed(context.Background(), 9, models.Student{ID: 1}, ClassContext{Level: "CP"},
		policy, models.SignatureTypeStandard)
	require.NoError(t, err)
	require.False(t, bypassed)
}

func TestGatingBypassedByStudentScope(t *testing.T) {
	scoper, _, _, bypasses := scoperFixture()
	bypasses.scopes[9] = []models.BypassScope{
		{SubjectID: 9, Type: models.BypassScopeStudent, Value: "1"},
	}
	policy := GatingPolicy{RestrictSignatures: true}

	bypassed, err := scoper.GatingBypassed(context.Background(), 9, models.Student{ID: 1}, ClassContext{},
		policy, models.SignatureTypeEndOfYear)
	require.NoError(t, err)
	require.True(t, bypassed)
}

func TestResolveClassContextPrefersAssignmentClass(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1, ClassID: classIDPtr(1)}
	student := models.Student{ID: 1, Level: "CP"}

	class, err := scoper.ResolveClassContext(context.Background(), assignment, student)
	require.NoError(t, err)
	require.NotNil(t, class.ClassID)
	require.Equal(t, uint(1), *class.ClassID)
	require.Equal(t, "CE1", class.Level)
}

func TestResolveClassContextFallsBackToEnrollment(t *testing.T) {
	scoper, _, _, _ := scoperFixture()
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1}
	student := models.Student{ID: 1, Level: "CP"}

	class, err := scoper.ResolveClassContext(context.Background(), assignment, student)
	require.NoError(t, err)
	require.NotNil(t, class.ClassID)
	require.Equal(t, "CE1", class.Level)
}

func TestResolveClassContextBareLevel(t *testing.T) {
	scoper, _, enrollments, _ := scoperFixture()
	enrollments.enrollments = nil
	assignment := models.CarnetAssignment{ID: 1, StudentID: 1}
	student := models.Student{ID: 1, Level: "CP"}

	class, err := scoper.ResolveClassContext(context.Background(), assignment, student)
	require.NoError(t, err)
	require.Nil(t, class.ClassID)
	require.Equal(t, "CP", class.Level)
}
