package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"medbot/internal/mailer"
	"medbot/internal/models"
	"medbot/internal/session"
	"medbot/internal/storage"

	"go.uber.org/zap"
)

// Outcome is the result kind of a barcode lookup
type Outcome int

const (
	// NotFound means no record has the barcode
	NotFound Outcome = iota
	// FoundWithPhoto means the record has a package photo
	FoundWithPhoto
	// FoundWithoutPhoto means the record exists but has no photo
	FoundWithoutPhoto
)

func (o Outcome) String() string {
	switch o {
	case FoundWithPhoto:
		return "found_with_photo"
	case FoundWithoutPhoto:
		return "found_without_photo"
	default:
		return "not_found"
	}
}

// LookupResult is the outcome of Lookup; Drug is nil when nothing was found
type LookupResult struct {
	Outcome Outcome
	Drug    *models.DrugRecord
}

// Lookup queries the repository for a barcode
func (e *Engine) Lookup(ctx context.Context, code string) (LookupResult, error) {
	drug, err := e.repo.GetDrug(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return LookupResult{Outcome: NotFound}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("failed to look up %s: %w", code, err)
	}

	if drug.HasPhoto() {
		return LookupResult{Outcome: FoundWithPhoto, Drug: drug}, nil
	}
	return LookupResult{Outcome: FoundWithoutPhoto, Drug: drug}, nil
}

// Search returns drugs matching the query, limited to the configured size
func (e *Engine) Search(ctx context.Context, query string) ([]models.DrugRecord, error) {
	return e.repo.SearchDrugs(ctx, query, e.searchLimit)
}

// IsBanned reports whether the user is banned
func (e *Engine) IsBanned(ctx context.Context, userID int64) (bool, error) {
	_, err := e.repo.GetBan(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) startScan(ctx context.Context, s *session.Session, in Input) Step {
	if len(in.Photo) > 0 {
		s.State = StateLookupScanning
		return e.handleScanning(ctx, s, in)
	}

	text := msgScanSearch
	if e.profile == AdminBot {
		text = msgScanAdmin
	}
	return next(StateLookupScanning, Reply{Text: text, HTML: true, Keyboard: [][]string{{LabelCancelScan}}})
}

// handleScanning accepts any number of photos until scanning is finished
func (e *Engine) handleScanning(ctx context.Context, s *session.Session, in Input) Step {
	if strings.TrimSpace(in.Text) == LabelFinishScan {
		return done(Reply{Text: msgScanFinished, Keyboard: mainKeyboard(e.profile)})
	}
	if len(in.Photo) == 0 {
		return stay(s, Reply{Text: msgSendPhoto, Keyboard: [][]string{{LabelFinishScan}}})
	}

	code, err := e.decoder.Decode(in.Photo)
	if err != nil {
		e.logger.Info("Barcode not decoded", zap.Int64("user_id", s.UserID), zap.Error(err))
		return stay(s, Reply{Text: msgScanFailed, HTML: true, Keyboard: [][]string{{LabelFinishScan, LabelInstructions}}})
	}
	s.LastBarcode = code

	result, err := e.Lookup(ctx, code)
	if err != nil {
		e.logger.Error("Failed to look up barcode", zap.Error(err), zap.String("barcode", code))
		return stay(s, failureReply())
	}

	e.logger.Info("Barcode scanned",
		zap.Int64("user_id", s.UserID),
		zap.String("barcode", code),
		zap.Stringer("outcome", result.Outcome))

	escaped := html.EscapeString(code)
	switch result.Outcome {
	case FoundWithPhoto:
		return next(StateLookupScanning, Reply{
			Text:     fmt.Sprintf(msgFound, escaped, drugDetails(*result.Drug)),
			HTML:     true,
			Photo:    result.Drug.Photo,
			Keyboard: [][]string{{LabelFinishScan}},
		})
	case FoundWithoutPhoto:
		return next(StateLookupScanning, Reply{
			Text:     fmt.Sprintf(msgFound, escaped, drugDetails(*result.Drug)) + "\n\n" + msgPhotoMissing,
			HTML:     true,
			Keyboard: [][]string{{LabelFinishScan}},
		})
	default:
		// Only contributors are offered to add the drug
		if _, ok := e.authorize(ctx, s.UserID, AccessContributor); !ok {
			return next(StateLookupScanning, Reply{
				Text:     fmt.Sprintf(msgNotFound, escaped),
				HTML:     true,
				Keyboard: [][]string{{LabelFinishScan}},
			})
		}
		return next(StateLookupOffer, Reply{
			Text:     fmt.Sprintf(msgNotFoundOffer, escaped),
			HTML:     true,
			Keyboard: [][]string{{LabelYes, LabelNo}, {LabelFinishScan}},
		})
	}
}

// handleOffer answers the offer to add a drug that was not found
func (e *Engine) handleOffer(ctx context.Context, s *session.Session, in Input) Step {
	if len(in.Photo) > 0 {
		s.State = StateLookupScanning
		return e.handleScanning(ctx, s, in)
	}

	switch answer := strings.TrimSpace(in.Text); {
	case answer == LabelFinishScan:
		return done(Reply{Text: msgScanFinished, Keyboard: mainKeyboard(e.profile)})
	case answer == LabelYes || strings.EqualFold(answer, "yes"):
		if denial, ok := e.authorize(ctx, s.UserID, AccessContributor); !ok {
			return stay(s, denial)
		}
		s.Draft = models.DrugRecord{Code: s.LastBarcode}
		return next(StateDrugName, Reply{Text: msgAddFromScan, Keyboard: cancelAddKeyboard()})
	case answer == LabelNo || strings.EqualFold(answer, "no"):
		return next(StateLookupScanning, Reply{Text: msgOkay}, Reply{Text: msgSendPhoto, Keyboard: [][]string{{LabelFinishScan}}})
	default:
		return stay(s, Reply{Text: msgAnswerYesNo, Keyboard: [][]string{{LabelYes, LabelNo}, {LabelFinishScan}}})
	}
}

// startReport opens a complaint about the last scanned drug.
// Without an existing record no state is created.
func (e *Engine) startReport(ctx context.Context, s *session.Session, in Input) Step {
	if s.LastBarcode == "" {
		return done(Reply{Text: msgReportNoBarcode, Keyboard: mainKeyboard(e.profile)})
	}

	exists, err := e.repo.DrugExists(ctx, s.LastBarcode)
	if err != nil {
		e.logger.Error("Failed to check barcode", zap.Error(err), zap.String("barcode", s.LastBarcode))
		return done(failureReply())
	}
	if !exists {
		return done(Reply{Text: msgReportNoBarcode, Keyboard: mainKeyboard(e.profile)})
	}

	if text, ok := textOf(Input{Text: in.Args}); ok {
		return e.fileReport(ctx, s, text)
	}
	return next(StateReportText, Reply{
		Text:     fmt.Sprintf(msgReportAsk, html.EscapeString(s.LastBarcode)),
		HTML:     true,
		Keyboard: cancelKeyboard(),
	})
}

func (e *Engine) handleReportText(ctx context.Context, s *session.Session, in Input) Step {
	text, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgTextExpected, Keyboard: cancelKeyboard()})
	}
	return e.fileReport(ctx, s, text)
}

// fileReport appends a tagged complaint and records who it concerns
func (e *Engine) fileReport(ctx context.Context, s *session.Session, text string) Step {
	drug, err := e.repo.GetDrug(ctx, s.LastBarcode)
	if errors.Is(err, storage.ErrNotFound) {
		return done(Reply{Text: msgReportGone, Keyboard: mainKeyboard(e.profile)})
	}
	if err != nil {
		e.logger.Error("Failed to get drug", zap.Error(err), zap.String("barcode", s.LastBarcode))
		return next(StateReportText, failureReply())
	}

	err = e.repo.AppendReport(ctx, drug.Code, models.FormatReportEntry(s.UserID, text))
	if errors.Is(err, storage.ErrNotFound) {
		return done(Reply{Text: msgReportGone, Keyboard: mainKeyboard(e.profile)})
	}
	if err != nil {
		e.logger.Error("Failed to append report", zap.Error(err), zap.String("barcode", drug.Code))
		return next(StateReportText, failureReply())
	}

	e.logger.Info("Report filed", zap.Int64("user_id", s.UserID), zap.String("barcode", drug.Code))
	e.recordActivity(ctx, models.Activity{
		At:        e.now(),
		Kind:      models.ActivityReportFiled,
		ActorID:   s.UserID,
		SubjectID: drug.ContributorID,
		Barcode:   drug.Code,
	})

	return done(Reply{Text: msgReportSaved, Keyboard: mainKeyboard(e.profile)})
}

func (e *Engine) startSearch(ctx context.Context, s *session.Session, in Input) Step {
	if query, ok := textOf(Input{Text: in.Args}); ok {
		s.SearchQuery = query
		return e.runSearch(ctx, s)
	}
	return next(StateSearchQuery, Reply{Text: msgSearchAsk, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleSearchQuery(ctx context.Context, s *session.Session, in Input) Step {
	query, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgSearchAsk, Keyboard: cancelKeyboard()})
	}
	s.SearchQuery = query
	return e.runSearch(ctx, s)
}

func (e *Engine) runSearch(ctx context.Context, s *session.Session) Step {
	drugs, err := e.Search(ctx, s.SearchQuery)
	if err != nil {
		e.logger.Error("Failed to search drugs", zap.Error(err), zap.String("query", s.SearchQuery))
		return done(failureReply())
	}

	query := html.EscapeString(s.SearchQuery)
	if len(drugs) == 0 {
		return done(Reply{Text: fmt.Sprintf(msgSearchEmpty, query), HTML: true, Keyboard: mainKeyboard(e.profile)})
	}
	return done(Reply{
		Text:     fmt.Sprintf(msgSearchResults, query, drugList(drugs)),
		HTML:     true,
		Keyboard: mainKeyboard(e.profile),
	})
}

func (e *Engine) startReview(ctx context.Context, s *session.Session, in Input) Step {
	drugs, err := e.repo.ListReportedDrugs(ctx, e.searchLimit)
	if err != nil {
		e.logger.Error("Failed to list reported drugs", zap.Error(err))
		return done(failureReply())
	}
	if len(drugs) == 0 {
		return done(Reply{Text: msgReviewEmpty, Keyboard: mainKeyboard(e.profile)})
	}
	return done(Reply{Text: fmt.Sprintf(msgReviewResults, reviewList(drugs)), HTML: true, Keyboard: mainKeyboard(e.profile)})
}

func (e *Engine) startFeedback(ctx context.Context, s *session.Session, in Input) Step {
	if text, ok := textOf(Input{Text: in.Args}); ok {
		return e.sendFeedback(ctx, s, in.Username, text)
	}
	return next(StateFeedbackText, Reply{Text: msgFeedbackAsk, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleFeedbackText(ctx context.Context, s *session.Session, in Input) Step {
	text, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgTextExpected, Keyboard: cancelKeyboard()})
	}
	return e.sendFeedback(ctx, s, in.Username, text)
}

// sendFeedback hands the text to the relay; on failure the user may retry
func (e *Engine) sendFeedback(ctx context.Context, s *session.Session, username, text string) Step {
	err := e.feedback.SendFeedback(ctx, mailer.Feedback{
		UserID:   s.UserID,
		Username: username,
		Text:     text,
		SentAt:   e.now(),
	})
	if err != nil {
		e.logger.Error("Failed to send feedback", zap.Error(err), zap.Int64("user_id", s.UserID))
		return next(StateFeedbackText, Reply{Text: msgFeedbackFailed, Keyboard: cancelKeyboard()})
	}

	e.logger.Info("Feedback sent", zap.Int64("user_id", s.UserID))
	return done(Reply{Text: msgFeedbackSent, Keyboard: mainKeyboard(e.profile)})
}
