package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/amanar-edu/carnet-api/internal/config"
	"github.com/amanar-edu/carnet-api/internal/dto"
	"github.com/amanar-edu/carnet-api/internal/handler"
	"github.com/amanar-edu/carnet-api/internal/middleware"
	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/internal/repository"
	"github.com/amanar-edu/carnet-api/internal/router"
	"github.com/amanar-edu/carnet-api/internal/service"
	"github.com/amanar-edu/carnet-api/pkg/templatestore"
)

type integrationTemplateStore struct {
	template templatestore.Template
}

func (s integrationTemplateStore) GetTemplate(_ context.Context, _ uint, _ int) (templatestore.Template, error) {
	return s.template, nil
}

// setupCarnetApp wires the full stack against sqlite and miniredis. School
// years are seeded relative to the wall clock because the services use real
// time outside their own package.
func setupCarnetApp(t *testing.T) (*fiber.App, *gorm.DB, models.CarnetAssignment) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.SchoolYear{},
		&models.Student{},
		&models.PromotionRecord{},
		&models.Enrollment{},
		&models.ClassGroup{},
		&models.TeacherClassLink{},
		&models.StaffSupervision{},
		&models.LevelScope{},
		&models.CarnetAssignment{},
		&models.TeacherCompletion{},
		&models.Signature{},
		&models.BypassScope{},
		&models.PromotionArchive{},
		&models.ActivityLog{},
	))

	now := time.Now().UTC()
	years := []models.SchoolYear{
		{ID: 1, Name: "2023-2024", Sequence: 1, StartDate: now.AddDate(-1, -9, 0), EndDate: now.AddDate(-1, 0, 0)},
		{ID: 2, Name: "2024-2025", Sequence: 2, StartDate: now.AddDate(0, -9, 0), EndDate: now.AddDate(0, 3, 0), Active: true, ActiveSemester: 2},
		{ID: 3, Name: "2025-2026", Sequence: 3, StartDate: now.AddDate(1, -9, 0), EndDate: now.AddDate(1, 3, 0)},
	}
	for i := range years {
		require.NoError(t, db.Create(&years[i]).Error)
	}

	class := models.ClassGroup{Name: "CE1-A", Level: "CE1", SchoolYearID: 2}
	require.NoError(t, db.Create(&class).Error)
	require.NoError(t, db.Create(&models.TeacherClassLink{
		TeacherID: 10, ClassID: class.ID, SchoolYearID: 2, Languages: []string{"ar"},
	}).Error)
	require.NoError(t, db.Create(&models.TeacherClassLink{
		TeacherID: 11, ClassID: class.ID, SchoolYearID: 2, IsGeneralist: true,
	}).Error)

	student := models.Student{FirstName: "Yacine", LastName: "M", Level: "CE1"}
	require.NoError(t, db.Create(&student).Error)
	require.NoError(t, db.Create(&models.Enrollment{
		StudentID: student.ID, SchoolYearID: 2, ClassID: &class.ID, Status: models.EnrollmentStatusActive,
	}).Error)

	assignment := models.CarnetAssignment{
		TemplateID:      1,
		TemplateVersion: 1,
		StudentID:       student.ID,
		ClassID:         &class.ID,
		Status:          models.CarnetStatusDraft,
	}
	require.NoError(t, db.Create(&assignment).Error)

	templates := integrationTemplateStore{
		template: templatestore.Template{
			ID:      1,
			Version: 1,
			Name:    "Carnet CE1",
			Blocks: []templatestore.Block{
				templatestore.NewTextBlock("intro", "Carnet scolaire"),
				templatestore.NewLanguageToggleBlock("langs",
					templatestore.ToggleItem{Code: "ar", Label: "Arabe"},
					templatestore.ToggleItem{Code: "fr", Label: "Français"},
				),
			},
		},
	}

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	scoper := service.NewAuthorizationScoper(
		repository.NewClassRepository(db),
		repository.NewEnrollmentRepository(db),
		repository.NewBypassRepository(db),
		logger,
	)
	schoolYears := service.NewSchoolYearService(repository.NewSchoolYearRepository(db), logger)
	ledger := service.NewSignatureLedger(repository.NewSignatureRepository(db), logger)
	engine := service.NewPromotionEngine(db, service.DefaultLevelLadder(), schoolYears, ledger, scoper, logger)

	reviewService := service.NewCarnetReviewService(service.CarnetReviewDeps{
		Carnets:     repository.NewCarnetRepository(db),
		Students:    repository.NewStudentRepository(db),
		Classes:     repository.NewClassRepository(db),
		Scoper:      scoper,
		SchoolYears: schoolYears,
		Ledger:      ledger,
		Engine:      engine,
		Templates:   templates,
		Activity:    service.NewActivityService(repository.NewActivityLogRepository(db), logger),
		Validator:   validate,
		Redis:       redisClient,
		CacheTTL:    time.Minute,
	}, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})

	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		CarnetHandler: handler.NewCarnetHandler(reviewService, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			userID := uint(10)
			if raw := c.Get("X-Test-User"); raw != "" {
				parsed, err := strconv.ParseUint(raw, 10, 64)
				if err != nil {
					return fiber.ErrUnauthorized
				}
				userID = uint(parsed)
			}
			role := c.Get("X-Test-Role")
			if role == "" {
				role = "teacher"
			}
			c.Locals("user_id", userID)
			c.Locals("user_role", role)
			return c.Next()
		},
	})

	return app, db, assignment
}

func decode[T any](t *testing.T, resp *http.Response, target *T) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func doJSON(t *testing.T, app *fiber.App, method, path string, userID uint, role string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", strconv.Itoa(int(userID)))
	req.Header.Set("X-Test-Role", role)

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestCarnetEndToEndFlow(t *testing.T) {
	app, db, assignment := setupCarnetApp(t)
	base := "/api/v2/carnets/" + strconv.Itoa(int(assignment.ID))

	// Step 1: class-linked teacher fetches the review view
	res := doJSON(t, app, http.MethodGet, base+"/review", 10, "teacher", nil)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	var viewResp struct {
		Success bool                   `json:"success"`
		Data    dto.ReviewViewResponse `json:"data"`
	}
	decode(t, res, &viewResp)
	require.True(t, viewResp.Success)
	require.Equal(t, string(models.CarnetStatusDraft), viewResp.Data.Assignment.Status)
	require.True(t, viewResp.Data.CanEdit)
	require.Equal(t, 2, viewResp.Data.ActiveSemester)
	require.Len(t, viewResp.Data.Categories, 2)

	// Step 2: a teacher with no link to the class is rejected
	res = doJSON(t, app, http.MethodGet, base+"/review", 99, "teacher", nil)
	require.Equal(t, fiber.StatusForbidden, res.StatusCode)
	res.Body.Close()

	// Step 3: both responsible teachers mark both semesters done
	done := true
	var carnetResp struct {
		Success bool               `json:"success"`
		Data    dto.CarnetResponse `json:"data"`
	}
	for _, teacherID := range []uint{10, 11} {
		for _, semester := range []int{1, 2} {
			res = doJSON(t, app, http.MethodPut, base+"/completions", teacherID, "teacher", dto.CompletionUpdateRequest{
				Semester: semester,
				Done:     &done,
			})
			require.Equal(t, fiber.StatusOK, res.StatusCode)
			decode(t, res, &carnetResp)
			require.True(t, carnetResp.Success)
		}
	}
	require.Equal(t, string(models.CarnetStatusCompleted), carnetResp.Data.Status)

	// Step 4: signing needs an elevated role
	res = doJSON(t, app, http.MethodPost, base+"/signatures", 10, "teacher", dto.SignRequest{Type: string(models.SignatureTypeEndOfYear)})
	require.Equal(t, fiber.StatusForbidden, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, app, http.MethodPost, base+"/signatures", 10, "sub_admin", dto.SignRequest{Type: string(models.SignatureTypeEndOfYear)})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	var signatureResp struct {
		Success bool                  `json:"success"`
		Data    dto.SignatureResponse `json:"data"`
	}
	decode(t, res, &signatureResp)
	require.True(t, signatureResp.Success)
	require.Equal(t, uint(10), signatureResp.Data.SignerID)
	require.Equal(t, "CE1", signatureResp.Data.Level)

	// Step 5: the signature shows up for the signer
	res = doJSON(t, app, http.MethodGet, base+"/review", 10, "teacher", nil)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	decode(t, res, &viewResp)
	require.NotNil(t, viewResp.Data.VisibleFinalSignature)
	require.True(t, viewResp.Data.IsSignedByViewer)

	// Step 6: promotion moves the student to the next rung
	res = doJSON(t, app, http.MethodPost, base+"/promotion", 10, "sub_admin", dto.PromoteRequest{Remark: "Bon travail"})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)

	var promoteResp struct {
		Success bool                `json:"success"`
		Data    dto.PromoteResponse `json:"data"`
	}
	decode(t, res, &promoteResp)
	require.True(t, promoteResp.Success)
	require.Equal(t, "CE1", promoteResp.Data.FromLevel)
	require.Equal(t, "CE2", promoteResp.Data.ToLevel)

	var student models.Student
	require.NoError(t, db.First(&student, assignment.StudentID).Error)
	require.Equal(t, "CE2", student.PendingLevel)
	require.Equal(t, "CE1", student.Level)

	// Step 7: a second promotion for the same year is a conflict
	res = doJSON(t, app, http.MethodPost, base+"/promotion", 10, "sub_admin", dto.PromoteRequest{})
	require.Equal(t, fiber.StatusConflict, res.StatusCode)
	res.Body.Close()
}

// reviewViewSchema is the contract the review endpoint promises to clients.
const reviewViewSchema = `{
  "type": "object",
  "required": ["assignment", "template", "student", "active_semester", "categories", "can_edit", "is_promoted", "is_signed_by_viewer"],
  "properties": {
    "assignment": {
      "type": "object",
      "required": ["id", "template_id", "template_version", "student_id", "status"],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "status": {"enum": ["draft", "in_progress", "completed", "signed"]}
      }
    },
    "student": {
      "type": "object",
      "required": ["id", "first_name", "last_name", "level"]
    },
    "active_semester": {"enum": [1, 2]},
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["category", "teacher_ids"],
        "properties": {
          "category": {"enum": ["arabic", "english", "polyvalent"]}
        }
      }
    }
  }
}`

func TestReviewViewContract(t *testing.T) {
	app, _, assignment := setupCarnetApp(t)
	base := "/api/v2/carnets/" + strconv.Itoa(int(assignment.ID))

	schema, err := jsonschema.CompileString("review_view.json", reviewViewSchema)
	require.NoError(t, err)

	res := doJSON(t, app, http.MethodGet, base+"/review", 10, "teacher", nil)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	var envelope struct {
		Data interface{} `json:"data"`
	}
	decode(t, res, &envelope)
	require.NoError(t, schema.Validate(envelope.Data))
}

func TestCarnetUnsignFlow(t *testing.T) {
	app, _, assignment := setupCarnetApp(t)
	base := "/api/v2/carnets/" + strconv.Itoa(int(assignment.ID))

	done := true
	for _, teacherID := range []uint{10, 11} {
		for _, semester := range []int{1, 2} {
			res := doJSON(t, app, http.MethodPut, base+"/completions", teacherID, "teacher", dto.CompletionUpdateRequest{
				Semester: semester,
				Done:     &done,
			})
			require.Equal(t, fiber.StatusOK, res.StatusCode)
			res.Body.Close()
		}
	}

	res := doJSON(t, app, http.MethodPost, base+"/signatures", 10, "sub_admin", dto.SignRequest{Type: string(models.SignatureTypeStandard)})
	require.Equal(t, fiber.StatusCreated, res.StatusCode)
	res.Body.Close()

	// a second signature of the same type is a conflict
	res = doJSON(t, app, http.MethodPost, base+"/signatures", 11, "sub_admin", dto.SignRequest{Type: string(models.SignatureTypeStandard)})
	require.Equal(t, fiber.StatusConflict, res.StatusCode)
	res.Body.Close()

	// any authorized staff member can withdraw it
	res = doJSON(t, app, http.MethodDelete, base+"/signatures/standard", 11, "sub_admin", nil)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	res.Body.Close()

	res = doJSON(t, app, http.MethodDelete, base+"/signatures/standard", 11, "sub_admin", nil)
	require.Equal(t, fiber.StatusNotFound, res.StatusCode)
	res.Body.Close()
}
