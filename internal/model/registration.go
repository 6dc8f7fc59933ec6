package model

import "time"

// Strategy names reported on a RegistrationResult.
const (
	StrategyAuto         = "auto"
	StrategyContextual   = "contextual"
	StrategyConfirmation = "confirmation"
	StrategyConfirmed    = "confirmed"
)

// WorkLogStatusConfirmed marks a committed work log.
const WorkLogStatusConfirmed = "confirmed"

// ResolvedMaterial is a material input reconciled to a reference record.
type ResolvedMaterial struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// WorkLog is a committed, fully-resolved work record.
type WorkLog struct {
	LogID        string             `json:"log_id" yaml:"log_id"`
	SubmitterID  string             `json:"submitter_id" yaml:"submitter_id"`
	WorkDate     time.Time          `json:"work_date" yaml:"work_date"`
	WorkCategory WorkCategory       `json:"work_category,omitempty" yaml:"work_category,omitempty"`
	FieldID      string             `json:"field_id,omitempty" yaml:"field_id,omitempty"`
	FieldName    string             `json:"field_name,omitempty" yaml:"field_name,omitempty"`
	CropID       string             `json:"crop_id,omitempty" yaml:"crop_id,omitempty"`
	CropName     string             `json:"crop_name,omitempty" yaml:"crop_name,omitempty"`
	Materials    []ResolvedMaterial `json:"materials,omitempty" yaml:"materials,omitempty"`
	Quantity     *float64           `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Unit         string             `json:"unit,omitempty" yaml:"unit,omitempty"`
	WorkCount    *int               `json:"work_count,omitempty" yaml:"work_count,omitempty"`
	Notes        string             `json:"notes,omitempty" yaml:"notes,omitempty"`
	Tags         []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Status       string             `json:"status" yaml:"status"`
	Strategy     string             `json:"strategy" yaml:"strategy"`
	Confidence   float64            `json:"confidence" yaml:"confidence"`
	RawMessage   string             `json:"raw_message" yaml:"raw_message"`
	CreatedAt    time.Time          `json:"created_at" yaml:"created_at"`
}

// OptionAction is what selecting a confirmation option does on resume.
type OptionAction string

const (
	ActionConfirm        OptionAction = "confirm_registration"
	ActionModify         OptionAction = "modify_info"
	ActionCancel         OptionAction = "cancel"
	ActionSelectField    OptionAction = "select_field"
	ActionSelectCrop     OptionAction = "select_crop"
	ActionSelectMaterial OptionAction = "select_material"
	ActionManualInput    OptionAction = "manual_input"
	ActionProceedAnyway  OptionAction = "proceed_anyway"
)

// Option is one selectable answer to a confirmation question. It carries
// everything needed to resume registration once chosen.
type Option struct {
	ID            string       `json:"id" yaml:"id"`
	Label         string       `json:"label" yaml:"label"`
	Action        OptionAction `json:"action" yaml:"action"`
	Kind          EntityKind   `json:"kind,omitempty" yaml:"kind,omitempty"`
	RefID         string       `json:"ref_id,omitempty" yaml:"ref_id,omitempty"`
	RefName       string       `json:"ref_name,omitempty" yaml:"ref_name,omitempty"`
	MaterialIndex int          `json:"material_index,omitempty" yaml:"material_index,omitempty"`
}

// Confirmation is the question and option set returned to a submitter when
// a report cannot be registered automatically.
type Confirmation struct {
	ID          string            `json:"id" yaml:"id"`
	SubmitterID string            `json:"submitter_id" yaml:"submitter_id"`
	RawMessage  string            `json:"raw_message" yaml:"raw_message"`
	Info        ExtractedInfo     `json:"info" yaml:"info"`
	Verdict     ValidationVerdict `json:"verdict" yaml:"-"`
	Message     string            `json:"message" yaml:"message"`
	Options     []Option          `json:"options" yaml:"options"`
	Reasoning   string            `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
}

// FindOption returns the option whose ID or action equals choice.
func (c *Confirmation) FindOption(choice string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == choice {
			return o, true
		}
	}
	for _, o := range c.Options {
		if string(o.Action) == choice {
			return o, true
		}
	}
	return Option{}, false
}

// RegistrationResult is the outcome of one submission.
type RegistrationResult struct {
	Success      bool          `json:"success" yaml:"success"`
	LogID        string        `json:"log_id,omitempty" yaml:"log_id,omitempty"`
	Strategy     string        `json:"strategy" yaml:"strategy"`
	Record       *WorkLog      `json:"record,omitempty" yaml:"record,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty" yaml:"confirmation,omitempty"`
	Message      string        `json:"message,omitempty" yaml:"message,omitempty"`
	Reasoning    string        `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// ContextAction is the recommendation of the context-reasoning service.
type ContextAction string

const (
	ContextUrgentAuto             ContextAction = "urgent_auto"
	ContextInferredAuto           ContextAction = "inferred_auto"
	ContextConfirmWithSuggestions ContextAction = "confirm_with_suggestions"
	ContextRequireConfirmation    ContextAction = "require_confirmation"
)

// Commits reports whether the action registers without asking.
func (a ContextAction) Commits() bool {
	return a == ContextUrgentAuto || a == ContextInferredAuto
}

// ContextAnalysis is the response of the context-reasoning service.
type ContextAnalysis struct {
	Action     ContextAction     `json:"recommended_action"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Urgency    string            `json:"urgency_level"`
	Inferred   map[string]string `json:"inferred_fields,omitempty"`
}
