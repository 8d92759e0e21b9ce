package conversation

import (
	"context"
	"errors"
	"strings"

	"medbot/internal/models"
	"medbot/internal/session"
	"medbot/internal/storage"
	"medbot/internal/validators"

	"go.uber.org/zap"
)

func (e *Engine) startAdd(ctx context.Context, s *session.Session, in Input) Step {
	if len(in.Photo) > 0 {
		return e.handleDrugBarcode(ctx, s, in)
	}
	return next(StateDrugBarcode, Reply{Text: msgAddStart, Keyboard: cancelAddKeyboard()})
}

func (e *Engine) handleDrugBarcode(ctx context.Context, s *session.Session, in Input) Step {
	if len(in.Photo) == 0 {
		return stay(s, Reply{Text: msgAddStart, Keyboard: cancelAddKeyboard()})
	}

	code, err := e.decoder.Decode(in.Photo)
	if err != nil {
		e.logger.Info("Barcode not decoded", zap.Int64("user_id", s.UserID), zap.Error(err))
		return next(StateDrugBarcode, Reply{Text: msgBarcodeFailed, HTML: true, Keyboard: cancelAddKeyboard()})
	}

	exists, err := e.repo.DrugExists(ctx, code)
	if err != nil {
		e.logger.Error("Failed to check barcode", zap.Error(err), zap.String("barcode", code))
		return next(StateDrugBarcode, failureReply())
	}
	if exists {
		e.logger.Info("Cancelling, barcode already exists", zap.Int64("user_id", s.UserID), zap.String("barcode", code))
		return done(Reply{Text: msgDuplicate, Keyboard: mainKeyboard(e.profile)})
	}

	s.Draft = models.DrugRecord{Code: code}
	s.LastBarcode = code
	return next(StateDrugName,
		Reply{Text: msgBarcodeOK},
		Reply{Text: msgAskName, Keyboard: cancelAddKeyboard()})
}

func (e *Engine) handleDrugName(ctx context.Context, s *session.Session, in Input) Step {
	name, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgAskName, Keyboard: cancelAddKeyboard()})
	}
	if !validators.CheckName(name) {
		return stay(s, Reply{Text: nameRejection(), Keyboard: cancelAddKeyboard()})
	}

	s.Draft.Name = name
	return next(StateDrugIngredient, Reply{Text: msgAskIngredient, Keyboard: cancelAddKeyboard()})
}

func (e *Engine) handleDrugIngredient(ctx context.Context, s *session.Session, in Input) Step {
	ingredient, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgAskIngredient, Keyboard: cancelAddKeyboard()})
	}
	if !validators.CheckActiveIngredient(ingredient) {
		return stay(s, Reply{Text: ingredientRejection(), Keyboard: cancelAddKeyboard()})
	}

	s.Draft.ActiveIngredient = ingredient
	return next(StateDrugDescription, Reply{Text: msgAskDescription, Keyboard: cancelAddKeyboard()})
}

func (e *Engine) handleDrugDescription(ctx context.Context, s *session.Session, in Input) Step {
	description, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgAskDescription, Keyboard: cancelAddKeyboard()})
	}
	if result, ok := validators.CheckDescription(e.detector, e.targetLanguage, description); !ok {
		return stay(s, Reply{Text: descriptionRejection(result), Keyboard: cancelAddKeyboard()})
	}

	s.Draft.Description = description
	return next(StateDrugPhoto, Reply{Text: msgAskPhoto, Keyboard: photoKeyboard()})
}

func (e *Engine) handleDrugPhoto(ctx context.Context, s *session.Session, in Input) Step {
	switch {
	case len(in.Photo) > 0:
		s.Draft.Photo = in.Photo
	case isSkip(in.Text):
		s.Draft.Photo = nil
	default:
		return stay(s, Reply{Text: msgPhotoOrSkip, Keyboard: photoKeyboard()})
	}
	return next(StateDrugConfirm, summaryReply(s.Draft))
}

func (e *Engine) handleDrugConfirm(ctx context.Context, s *session.Session, in Input) Step {
	token := strings.TrimSpace(in.Text)
	switch {
	case token == TokenConfirm || token == LabelConfirm:
		return e.commitDrug(ctx, s)
	case token == TokenReject || token == LabelReject:
		e.logger.Info("Drug entry rejected", zap.Int64("user_id", s.UserID), zap.String("barcode", s.Draft.Code))
		return done(Reply{Text: msgAddRejected, Keyboard: mainKeyboard(e.profile)})
	case strings.HasPrefix(token, TokenEditPrefix):
		field := strings.TrimPrefix(token, TokenEditPrefix)
		prompt, ok := editPrompt(field)
		if !ok {
			return stay(s, Reply{Text: msgChooseOption}, summaryReply(s.Draft))
		}
		s.EditTarget = field
		return next(StateDrugEdit, prompt)
	default:
		return stay(s, Reply{Text: msgChooseOption}, summaryReply(s.Draft))
	}
}

// commitDrug inserts the draft with the contributor and timestamp attached
func (e *Engine) commitDrug(ctx context.Context, s *session.Session) Step {
	drug := s.Draft
	drug.ContributorID = s.UserID
	drug.CreatedAt = e.now()

	err := e.repo.InsertDrug(ctx, drug)
	if errors.Is(err, storage.ErrDuplicate) {
		e.logger.Info("Duplicate barcode on insert", zap.Int64("user_id", s.UserID), zap.String("barcode", drug.Code))
		return done(Reply{Text: msgDuplicate, Keyboard: mainKeyboard(e.profile)})
	}
	if err != nil {
		e.logger.Error("Failed to insert drug", zap.Error(err), zap.String("barcode", drug.Code))
		return stay(s, failureReply(), summaryReply(s.Draft))
	}

	e.logger.Info("Drug added",
		zap.Int64("user_id", s.UserID),
		zap.String("barcode", drug.Code),
		zap.String("name", drug.Name))
	e.recordActivity(ctx, models.Activity{
		At:        drug.CreatedAt,
		Kind:      models.ActivityDrugAdded,
		ActorID:   s.UserID,
		SubjectID: s.UserID,
		Barcode:   drug.Code,
	})

	return done(Reply{Text: msgInserted, Keyboard: mainKeyboard(e.profile)})
}

// handleDrugEdit replaces exactly the field chosen at the confirmation step
func (e *Engine) handleDrugEdit(ctx context.Context, s *session.Session, in Input) Step {
	prompt, ok := editPrompt(s.EditTarget)
	if !ok {
		s.EditTarget = ""
		return next(StateDrugConfirm, summaryReply(s.Draft))
	}

	switch s.EditTarget {
	case FieldPhoto:
		switch {
		case len(in.Photo) > 0:
			s.Draft.Photo = in.Photo
		case isSkip(in.Text):
			s.Draft.Photo = nil
		default:
			return stay(s, prompt)
		}

	case FieldDescription:
		text, ok := textOf(in)
		if !ok {
			return stay(s, prompt)
		}
		if result, ok := validators.CheckDescription(e.detector, e.targetLanguage, text); !ok {
			return stay(s, Reply{Text: descriptionRejection(result), Keyboard: cancelAddKeyboard()})
		}
		s.Draft.Description = text

	case FieldName, FieldActiveIngredient:
		text, ok := textOf(in)
		if !ok {
			return stay(s, prompt)
		}
		if s.EditTarget == FieldName {
			if !validators.CheckName(text) {
				return stay(s, Reply{Text: nameRejection(), Keyboard: cancelAddKeyboard()})
			}
			s.Draft.Name = text
		} else {
			if !validators.CheckActiveIngredient(text) {
				return stay(s, Reply{Text: ingredientRejection(), Keyboard: cancelAddKeyboard()})
			}
			s.Draft.ActiveIngredient = text
		}
	}

	s.EditTarget = ""
	return next(StateDrugConfirm, summaryReply(s.Draft))
}

func (e *Engine) recordActivity(ctx context.Context, a models.Activity) {
	if e.activity == nil {
		return
	}
	if err := e.activity.Record(ctx, a); err != nil {
		e.logger.Error("Failed to record activity",
			zap.Error(err),
			zap.String("kind", a.Kind),
			zap.Int64("actor_id", a.ActorID))
	}
}

func editPrompt(field string) (Reply, bool) {
	switch field {
	case FieldName:
		return Reply{Text: msgEditName, Keyboard: cancelAddKeyboard()}, true
	case FieldActiveIngredient:
		return Reply{Text: msgEditIngredient, Keyboard: cancelAddKeyboard()}, true
	case FieldDescription:
		return Reply{Text: msgEditDescription, Keyboard: cancelAddKeyboard()}, true
	case FieldPhoto:
		return Reply{Text: msgEditPhoto, Keyboard: photoKeyboard()}, true
	default:
		return Reply{}, false
	}
}

func summaryReply(d models.DrugRecord) Reply {
	return Reply{Text: draftSummary(d), HTML: true, Choices: confirmChoices()}
}

func photoKeyboard() [][]string {
	return [][]string{{LabelSkip}, {LabelCancelAdd}}
}

// textOf returns the trimmed text of the input, false when there is none
func textOf(in Input) (string, bool) {
	text := strings.TrimSpace(in.Text)
	return text, text != ""
}

func isSkip(text string) bool {
	text = strings.TrimSpace(text)
	return text == LabelSkip || strings.EqualFold(text, TokenSkip)
}
