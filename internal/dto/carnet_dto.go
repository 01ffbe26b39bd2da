package dto

import (
	"time"

	"github.com/amanar-edu/carnet-api/internal/models"
	"github.com/amanar-edu/carnet-api/pkg/templatestore"
)

// CompletionUpdateRequest marks one semester done or not done for a teacher.
type CompletionUpdateRequest struct {
	Semester int   `json:"semester" validate:"required,oneof=1 2"`
	Done     *bool `json:"done" validate:"required"`
}

// SignRequest asks for a signature of the given type on a carnet.
type SignRequest struct {
	Type string `json:"type" validate:"required,oneof=standard end_of_year"`
}

// PromoteRequest asks for the student's promotion. NextLevel is only a
// fallback for when the level ladder has no successor.
type PromoteRequest struct {
	NextLevel      string `json:"next_level" validate:"omitempty,max=16"`
	Remark         string `json:"remark" validate:"omitempty,max=2048"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=64"`
}

// StudentResponse is the student projection embedded in review views.
type StudentResponse struct {
	ID           uint   `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Level        string `json:"level"`
	PendingLevel string `json:"pending_level,omitempty"`
}

// PromotionNoteView is the denormalized promotion trace shown on a carnet.
type PromotionNoteView struct {
	SchoolYearID uint      `json:"school_year_id"`
	FromLevel    string    `json:"from_level"`
	ToLevel      string    `json:"to_level"`
	PromotedByID uint      `json:"promoted_by_id"`
	Remark       string    `json:"remark,omitempty"`
	Date         time.Time `json:"date"`
}

// CarnetResponse is the serialized carnet assignment.
type CarnetResponse struct {
	ID                 uint                `json:"id"`
	TemplateID         uint                `json:"template_id"`
	TemplateVersion    int                 `json:"template_version"`
	StudentID          uint                `json:"student_id"`
	ClassID            *uint               `json:"class_id,omitempty"`
	Status             string              `json:"status"`
	AssignedTeacherIDs []uint              `json:"assigned_teacher_ids"`
	PromotionHistory   []PromotionNoteView `json:"promotion_history,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// SignatureResponse is the serialized signature with its nominal year label.
type SignatureResponse struct {
	ID              uint      `json:"id"`
	AssignmentID    uint      `json:"assignment_id"`
	SignerID        uint      `json:"signer_id"`
	Type            string    `json:"type"`
	Level           string    `json:"level,omitempty"`
	SignedAt        time.Time `json:"signed_at"`
	SchoolYearLabel string    `json:"school_year_label,omitempty"`
}

// ToggleItemView is one language entry of a toggle block.
type ToggleItemView struct {
	Code   string   `json:"code"`
	Label  string   `json:"label"`
	Levels []string `json:"levels,omitempty"`
}

// BlockView is one template block with any override merged in.
type BlockView struct {
	Key   string           `json:"key"`
	Kind  string           `json:"kind"`
	Body  string           `json:"body,omitempty"`
	Items []ToggleItemView `json:"items,omitempty"`
	Rows  []string         `json:"rows,omitempty"`
}

// TemplateView is the template rendered for a review view.
type TemplateView struct {
	ID      uint        `json:"id"`
	Version int         `json:"version"`
	Name    string      `json:"name,omitempty"`
	Blocks  []BlockView `json:"blocks"`
}

// CategoryStatusView reports per-category teacher completion progress.
type CategoryStatusView struct {
	Category   string `json:"category"`
	TeacherIDs []uint `json:"teacher_ids"`
	Sem1Done   bool   `json:"sem1_done"`
	Sem2Done   bool   `json:"sem2_done"`
}

// ReviewViewResponse is the aggregate returned by the review endpoint.
type ReviewViewResponse struct {
	Assignment            CarnetResponse       `json:"assignment"`
	Template              TemplateView         `json:"template"`
	Student               StudentResponse      `json:"student"`
	VisibleSignature      *SignatureResponse   `json:"visible_signature,omitempty"`
	VisibleFinalSignature *SignatureResponse   `json:"visible_final_signature,omitempty"`
	IsSignedByViewer      bool                 `json:"is_signed_by_viewer"`
	CanEdit               bool                 `json:"can_edit"`
	IsPromoted            bool                 `json:"is_promoted"`
	ActiveSemester        int                  `json:"active_semester"`
	EligibleForStandard   bool                 `json:"eligible_for_standard_sign"`
	EligibleForFinal      bool                 `json:"eligible_for_final_sign"`
	Categories            []CategoryStatusView `json:"categories"`
}

// PromoteResponse returns the post-promotion state.
type PromoteResponse struct {
	Assignment CarnetResponse  `json:"assignment"`
	Student    StudentResponse `json:"student"`
	FromLevel  string          `json:"from_level"`
	ToLevel    string          `json:"to_level"`
	Replayed   bool            `json:"replayed,omitempty"`
}

// NewStudentResponse converts a model into a DTO.
func NewStudentResponse(model models.Student) StudentResponse {
	return StudentResponse{
		ID:           model.ID,
		FirstName:    model.FirstName,
		LastName:     model.LastName,
		Level:        model.Level,
		PendingLevel: model.PendingLevel,
	}
}

// NewCarnetResponse converts a model into a DTO.
func NewCarnetResponse(model models.CarnetAssignment) CarnetResponse {
	auxiliary := model.Auxiliary.Data()
	notes := make([]PromotionNoteView, 0, len(auxiliary.PromotionHistory))
	for _, note := range auxiliary.PromotionHistory {
		notes = append(notes, PromotionNoteView{
			SchoolYearID: note.SchoolYearID,
			FromLevel:    note.FromLevel,
			ToLevel:      note.ToLevel,
			PromotedByID: note.PromotedByID,
			Remark:       note.Remark,
			Date:         note.Date,
		})
	}

	return CarnetResponse{
		ID:                 model.ID,
		TemplateID:         model.TemplateID,
		TemplateVersion:    model.TemplateVersion,
		StudentID:          model.StudentID,
		ClassID:            model.ClassID,
		Status:             string(model.Status),
		AssignedTeacherIDs: append([]uint(nil), model.AssignedTeacherIDs...),
		PromotionHistory:   notes,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

// NewSignatureResponse converts a model into a DTO.
func NewSignatureResponse(model models.Signature, yearLabel string) SignatureResponse {
	return SignatureResponse{
		ID:              model.ID,
		AssignmentID:    model.AssignmentID,
		SignerID:        model.SignerID,
		Type:            string(model.Type),
		Level:           model.Level,
		SignedAt:        model.SignedAt,
		SchoolYearLabel: yearLabel,
	}
}

// NewTemplateView renders the template with per-block overrides merged onto
// text bodies.
func NewTemplateView(template templatestore.Template, overrides map[string]string) TemplateView {
	blocks := make([]BlockView, 0, len(template.Blocks))
	for _, block := range template.Blocks {
		view := BlockView{Key: block.Key, Kind: string(block.Kind)}

		if text, ok := block.Text(); ok {
			view.Body = text.Body
		}
		if override, ok := overrides[block.Key]; ok {
			view.Body = override
		}
		if toggle, ok := block.LanguageToggle(); ok {
			items := make([]ToggleItemView, 0, len(toggle.Items))
			for _, item := range toggle.Items {
				items = append(items, ToggleItemView{Code: item.Code, Label: item.Label, Levels: item.Levels})
			}
			view.Items = items
		}
		if grid, ok := block.GradeGrid(); ok {
			view.Rows = grid.Rows
		}

		blocks = append(blocks, view)
	}

	return TemplateView{
		ID:      template.ID,
		Version: template.Version,
		Name:    template.Name,
		Blocks:  blocks,
	}
}
