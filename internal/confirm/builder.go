// Package confirm builds the question and options shown to a submitter when
// a report cannot be registered without their input.
package confirm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/worklog-cli/internal/model"
)

const (
	defaultMaxCandidates     = 3
	defaultMaxMaterialBlocks = 2
)

// Builder assembles Confirmation payloads. It is pure; callers stamp the ID
// and creation time.
type Builder struct {
	MaxCandidates     int
	MaxMaterialBlocks int
}

// NewBuilder returns a Builder with the default limits: three candidates per
// entity and blocks for the first two materials.
func NewBuilder() *Builder {
	return &Builder{MaxCandidates: defaultMaxCandidates, MaxMaterialBlocks: defaultMaxMaterialBlocks}
}

var missingLabels = map[model.MissingItem]string{
	model.MissingWorkDate:     "work date",
	model.MissingFieldName:    "field",
	model.MissingWorkCategory: "work category",
	model.MissingMaterials:    "materials used",
	model.MissingQuantity:     "quantity",
}

// Build returns the confirmation for info and verdict.
func (b *Builder) Build(info model.ExtractedInfo, verdict model.ValidationVerdict) model.Confirmation {
	c := model.Confirmation{Info: info.Clone(), Verdict: verdict}
	if verdict.Valid {
		c.Message = summary(info, &verdict) + notes(verdict.Suggestions)
		c.Options = numbered([]model.Option{
			{Label: "Register this record", Action: model.ActionConfirm},
			{Label: "Edit the details", Action: model.ActionModify},
			{Label: "Cancel", Action: model.ActionCancel},
		})
		return c
	}

	var msg strings.Builder
	msg.WriteString("Some details need your confirmation before this report can be registered.")
	var opts []model.Option

	addBlock := func(title string, r *model.MatchResult, action model.OptionAction, kind model.EntityKind, materialIndex int) {
		if r == nil || r.Resolved(verdict.Threshold) {
			return
		}
		msg.WriteString("\n\n")
		switch {
		case r.Err != "":
			fmt.Fprintf(&msg, "%s %q: reference data is unavailable right now.", title, r.Input)
			return
		case len(r.Candidates) == 0:
			fmt.Fprintf(&msg, "%s %q: no matching record was found.", title, r.Input)
			return
		case r.Ambiguous:
			fmt.Fprintf(&msg, "%s %q matches more than one record. Which one did you mean?", title, r.Input)
		default:
			fmt.Fprintf(&msg, "%s %q: did you mean one of these?", title, r.Input)
		}
		for i, cand := range r.Candidates {
			if i >= b.maxCandidates() {
				break
			}
			opts = append(opts, model.Option{
				Label:         fmt.Sprintf("%s: %s (%d%%)", title, cand.Name, percent(cand.Confidence)),
				Action:        action,
				Kind:          kind,
				RefID:         cand.ID,
				RefName:       cand.Name,
				MaterialIndex: materialIndex,
			})
		}
	}

	addBlock("Field", verdict.Field, model.ActionSelectField, model.KindField, 0)
	addBlock("Crop", verdict.Crop, model.ActionSelectCrop, model.KindCrop, 0)
	for i, m := range verdict.Materials {
		if i >= b.maxMaterialBlocks() {
			break
		}
		r := m.Result
		addBlock("Material", &r, model.ActionSelectMaterial, model.KindMaterial, i)
	}

	if len(verdict.Missing) > 0 {
		msg.WriteString("\n\nPlease also provide:")
		for _, item := range verdict.Missing {
			label := missingLabels[item]
			if label == "" {
				label = string(item)
			}
			msg.WriteString("\n- ")
			msg.WriteString(label)
		}
	}
	msg.WriteString(notes(verdict.Suggestions))

	opts = append(opts,
		model.Option{Label: "Enter the details manually", Action: model.ActionManualInput},
		model.Option{Label: "Register as is", Action: model.ActionProceedAnyway},
		model.Option{Label: "Cancel", Action: model.ActionCancel},
	)
	c.Message = msg.String()
	c.Options = numbered(opts)
	return c
}

func (b *Builder) maxCandidates() int {
	if b == nil || b.MaxCandidates <= 0 {
		return defaultMaxCandidates
	}
	return b.MaxCandidates
}

func (b *Builder) maxMaterialBlocks() int {
	if b == nil || b.MaxMaterialBlocks <= 0 {
		return defaultMaxMaterialBlocks
	}
	return b.MaxMaterialBlocks
}

// summary renders the values a valid record will be registered with.
func summary(info model.ExtractedInfo, v *model.ValidationVerdict) string {
	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, value))
		}
	}
	add("Date", info.WorkDate)
	add("Field", resolvedName(v.Field, info.FieldName, v.Threshold))
	add("Crop", resolvedName(v.Crop, info.CropName, v.Threshold))
	if c := info.WorkCategory.Canonical(); c != "" {
		add("Category", string(c))
	} else {
		add("Category", string(info.WorkCategory))
	}

	var mats []string
	for _, m := range v.Materials {
		mats = append(mats, resolvedName(&m.Result, m.Input, v.Threshold))
	}
	add("Materials", strings.Join(mats, ", "))
	if info.Quantity != nil {
		add("Quantity", strings.TrimSpace(strconv.FormatFloat(*info.Quantity, 'f', -1, 64)+" "+info.Unit))
	}
	add("Notes", info.Notes)
	lines = append(lines, fmt.Sprintf("Confidence: %d%%", percent(info.ConfidenceValue())))

	return "Please confirm this work record:\n" + strings.Join(lines, "\n")
}

func resolvedName(r *model.MatchResult, input string, threshold float64) string {
	if r.Resolved(threshold) {
		return r.Best.Name
	}
	return input
}

func percent(c float64) int {
	return int(c*100 + 0.5)
}

func notes(suggestions []string) string {
	if len(suggestions) == 0 {
		return ""
	}
	return "\n\nPlease note:\n- " + strings.Join(suggestions, "\n- ")
}

// numbered assigns sequential option IDs starting at "1".
func numbered(opts []model.Option) []model.Option {
	for i := range opts {
		opts[i].ID = strconv.Itoa(i + 1)
	}
	return opts
}
