package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/worklog-cli/internal/model"
	"github.com/sells-group/worklog-cli/internal/store"
	"github.com/sells-group/worklog-cli/internal/strategy"
)

// Resume loads the pending confirmation id and applies choice to it. It
// returns store.ErrNotFound when id is unknown.
func (s *Service) Resume(ctx context.Context, id, choice string, additional map[string]string) (*model.RegistrationResult, error) {
	if s.confirmations == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "confirmation %s", id)
	}
	payload, err := s.confirmations.GetPendingConfirmation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ResumeAfterConfirmation(ctx, payload, choice, additional)
}

// ResumeAfterConfirmation applies the submitter's answer to payload. choice
// is an option id or an action name; additional carries corrected values
// keyed by extracted field name.
func (s *Service) ResumeAfterConfirmation(
	ctx context.Context,
	payload *model.Confirmation,
	choice string,
	additional map[string]string,
) (*model.RegistrationResult, error) {
	if payload == nil {
		return nil, eris.Wrap(ErrInvalidSubmission, "confirmation payload is nil")
	}
	opt, ok := resolveChoice(payload, choice)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownChoice, "choice %q", choice)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("confirmation_id", payload.ID),
		zap.String("action", string(opt.Action)),
	)

	if opt.Action == model.ActionCancel {
		s.discard(ctx, payload.ID)
		log.Info("pipeline: confirmation cancelled")
		return &model.RegistrationResult{
			Success:  false,
			Strategy: model.StrategyConfirmed,
			Message:  "cancelled",
		}, nil
	}

	info := payload.Info.Clone()
	switch opt.Action {
	case model.ActionModify, model.ActionManualInput:
		if err := applyOverrides(&info, additional); err != nil {
			return nil, err
		}
		info.Source = model.SourceManual
	case model.ActionSelectField, model.ActionSelectCrop, model.ActionSelectMaterial:
		if err := applyOverrides(&info, additional); err != nil {
			return nil, err
		}
		if err := applySelection(&info, opt); err != nil {
			return nil, err
		}
		info.Source = model.SourceManual
	}

	s.score(&info)
	verdict := s.validator.Validate(ctx, info)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if isSelect(opt.Action) {
		pin(&verdict, opt)
		s.validator.Assess(info, &verdict)
	}

	sub := strategy.Submission{
		Raw:         payload.RawMessage,
		SubmitterID: payload.SubmitterID,
		Info:        info,
		Verdict:     verdict,
		Reasoning:   payload.Reasoning,
	}

	commit := verdict.Valid
	if opt.Action == model.ActionProceedAnyway {
		commit = verdict.AnyResolved()
	}
	if !commit {
		log.Info("pipeline: answer still incomplete, asking again",
			zap.Int("missing", len(verdict.Missing)),
		)
		return s.reconfirm(ctx, payload.ID, sub)
	}

	l, err := s.engine.Persister().Commit(ctx, sub, model.StrategyConfirmed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, strategy.ErrWorkDate) {
			sub.Suggestions = append(sub.Suggestions, "The work date could not be read. Please enter it as YYYY-MM-DD.")
			sub.Verdict.Valid = false
		} else {
			sub.Suggestions = append(sub.Suggestions, "The record could not be saved. Please confirm to try again.")
		}
		log.Warn("pipeline: confirmed record not committed", zap.Error(err))
		return s.reconfirm(ctx, payload.ID, sub)
	}

	s.discard(ctx, payload.ID)
	return &model.RegistrationResult{
		Success:   true,
		LogID:     l.LogID,
		Strategy:  model.StrategyConfirmed,
		Record:    l,
		Message:   "registered " + l.LogID,
		Reasoning: payload.Reasoning,
	}, nil
}

// reconfirm issues a new confirmation for sub and retires the old one.
func (s *Service) reconfirm(ctx context.Context, oldID string, sub strategy.Submission) (*model.RegistrationResult, error) {
	res, err := s.engine.Confirm(ctx, sub)
	if err != nil {
		return nil, err
	}
	if res.Confirmation != nil && res.Confirmation.ID != oldID {
		s.discard(ctx, oldID)
	}
	return res, nil
}

// discard deletes a pending confirmation. Failures are logged only.
func (s *Service) discard(ctx context.Context, id string) {
	if s.confirmations == nil || id == "" {
		return
	}
	if err := s.confirmations.DeletePendingConfirmation(ctx, id); err != nil {
		zap.L().Warn("pipeline: pending confirmation not deleted",
			zap.String("confirmation_id", id),
			zap.Error(err),
		)
	}
}

// plainActions can be chosen by name even when no option carries them.
var plainActions = map[model.OptionAction]bool{
	model.ActionConfirm:       true,
	model.ActionModify:        true,
	model.ActionCancel:        true,
	model.ActionManualInput:   true,
	model.ActionProceedAnyway: true,
}

func resolveChoice(payload *model.Confirmation, choice string) (model.Option, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return model.Option{}, false
	}
	if opt, ok := payload.FindOption(choice); ok {
		return opt, true
	}
	if a := model.OptionAction(choice); plainActions[a] {
		return model.Option{Action: a}, true
	}
	return model.Option{}, false
}

func isSelect(a model.OptionAction) bool {
	return a == model.ActionSelectField || a == model.ActionSelectCrop || a == model.ActionSelectMaterial
}

// applyOverrides writes non-blank values of additional into info. Unknown
// keys are ignored.
func applyOverrides(info *model.ExtractedInfo, additional map[string]string) error {
	for key, raw := range additional {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		switch key {
		case "work_date":
			info.WorkDate = v
		case "field_name":
			info.FieldName = v
		case "crop_name":
			info.CropName = v
		case "work_category":
			info.WorkCategory = model.WorkCategory(v)
		case "materials":
			info.Materials = strategy.SplitList(v)
		case "quantity":
			q, err := strconv.ParseFloat(v, 64)
			if err != nil || q < 0 {
				return eris.Wrapf(ErrInvalidSubmission, "quantity %q is not a non-negative number", v)
			}
			info.Quantity = &q
		case "unit":
			info.Unit = v
		case "work_count":
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return eris.Wrapf(ErrInvalidSubmission, "work_count %q is not a non-negative integer", v)
			}
			info.WorkCount = &n
		case "notes":
			info.Notes = v
		default:
			zap.L().Warn("pipeline: ignoring unknown override", zap.String("key", key))
		}
	}
	return nil
}

// applySelection writes the chosen reference name into the matching text.
func applySelection(info *model.ExtractedInfo, opt model.Option) error {
	name := strings.TrimSpace(opt.RefName)
	if name == "" || opt.RefID == "" {
		return eris.Wrapf(ErrInvalidSubmission, "option %s carries no reference", opt.ID)
	}
	switch opt.Action {
	case model.ActionSelectField:
		info.FieldName = name
	case model.ActionSelectCrop:
		info.CropName = name
	case model.ActionSelectMaterial:
		if i := materialSlot(info.Materials, opt.MaterialIndex); i >= 0 {
			info.Materials[i] = name
		} else {
			info.Materials = append(info.Materials, name)
		}
	}
	return nil
}

// materialSlot maps an index over the non-blank materials to an index into
// materials, or -1.
func materialSlot(materials []string, idx int) int {
	n := 0
	for i, m := range materials {
		if strings.TrimSpace(m) == "" {
			continue
		}
		if n == idx {
			return i
		}
		n++
	}
	return -1
}

// pin forces the selected reference onto verdict.
func pin(verdict *model.ValidationVerdict, opt model.Option) {
	pinResult := func(r **model.MatchResult) {
		if *r == nil {
			res := model.NoMatch(opt.RefName)
			*r = &res
		}
		(*r).Pin(opt.RefID, opt.RefName)
	}
	switch opt.Action {
	case model.ActionSelectField:
		pinResult(&verdict.Field)
	case model.ActionSelectCrop:
		pinResult(&verdict.Crop)
	case model.ActionSelectMaterial:
		for i := range verdict.Materials {
			if verdict.Materials[i].Input == opt.RefName {
				verdict.Materials[i].Result.Pin(opt.RefID, opt.RefName)
				return
			}
		}
		res := model.NoMatch(opt.RefName)
		res.Pin(opt.RefID, opt.RefName)
		verdict.Materials = append(verdict.Materials, model.MaterialMatch{Input: opt.RefName, Result: res})
	}
}
