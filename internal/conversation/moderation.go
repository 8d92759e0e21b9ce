package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"medbot/internal/face"
	"medbot/internal/models"
	"medbot/internal/session"
	"medbot/internal/storage"

	"go.uber.org/zap"
)

func (e *Engine) startRegister(ctx context.Context, s *session.Session, in Input) Step {
	_, err := e.repo.GetAdmin(ctx, s.UserID)
	if err == nil {
		return done(Reply{Text: msgAlreadyAdmin, Keyboard: mainKeyboard(e.profile)})
	}
	if !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("Failed to check admin", zap.Error(err), zap.Int64("user_id", s.UserID))
		return done(failureReply())
	}

	return next(StateRegisterContact, Reply{Text: msgAskContact, RequestContact: true, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleRegisterContact(ctx context.Context, s *session.Session, in Input) Step {
	contact := strings.TrimSpace(in.Contact)
	if contact == "" {
		contact = strings.TrimSpace(in.Text)
	}
	if err := e.validate.Var(contact, "required,max=256"); err != nil {
		return stay(s, Reply{Text: msgBadContact, RequestContact: true, Keyboard: cancelKeyboard()})
	}

	s.Contact = contact
	return next(StateRegisterFace, Reply{Text: msgAskFace, Keyboard: cancelKeyboard()})
}

// handleRegisterFace commits the admin once the photo shows exactly one face
func (e *Engine) handleRegisterFace(ctx context.Context, s *session.Session, in Input) Step {
	if len(in.Photo) == 0 {
		return stay(s, Reply{Text: msgAskFace, Keyboard: cancelKeyboard()})
	}
	if e.faces == nil {
		e.logger.Error("Face classifier is not configured")
		return stay(s, failureReply())
	}

	result, err := e.faces.Classify(in.Photo)
	if err != nil {
		e.logger.Info("Face photo not processed", zap.Error(err), zap.Int64("user_id", s.UserID))
		return stay(s, Reply{Text: msgFaceUnreadable, Keyboard: cancelKeyboard()})
	}

	switch result.Verdict {
	case face.TooMany:
		return stay(s, Reply{Text: msgFaceTooMany, Keyboard: cancelKeyboard()})
	case face.NotFound:
		return stay(s, Reply{Text: msgFaceNotFound, Keyboard: cancelKeyboard()})
	}

	admin := models.AdminRecord{
		UserID:       s.UserID,
		ContactInfo:  s.Contact,
		FacePhoto:    result.Face,
		RegisteredAt: e.now(),
	}
	if err := e.validate.Struct(admin); err != nil {
		e.logger.Warn("Invalid admin record", zap.Error(err), zap.Int64("user_id", s.UserID))
		return next(StateRegisterContact, Reply{Text: msgBadContact, RequestContact: true, Keyboard: cancelKeyboard()})
	}

	err = e.repo.InsertAdmin(ctx, admin)
	if errors.Is(err, storage.ErrDuplicate) {
		return done(Reply{Text: msgAlreadyAdmin, Keyboard: mainKeyboard(e.profile)})
	}
	if err != nil {
		e.logger.Error("Failed to insert admin", zap.Error(err), zap.Int64("user_id", s.UserID))
		return stay(s, failureReply())
	}

	e.logger.Info("Admin registered", zap.Int64("user_id", s.UserID))
	e.recordActivity(ctx, models.Activity{
		At:        admin.RegisteredAt,
		Kind:      models.ActivityAdminRegistered,
		ActorID:   s.UserID,
		SubjectID: s.UserID,
	})

	return done(Reply{Text: msgRegistered, Keyboard: mainKeyboard(e.profile)})
}

func (e *Engine) startBan(ctx context.Context, s *session.Session, in Input) Step {
	if target, ok := parseUserID(in.Args); ok {
		s.PendingTargetUserID = target
		return next(StateBanReason, Reply{Text: msgAskBanReason, Keyboard: cancelKeyboard()})
	}
	return next(StateBanTarget, Reply{Text: msgAskTarget, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleBanTarget(ctx context.Context, s *session.Session, in Input) Step {
	target, ok := parseUserID(in.Text)
	if !ok {
		return stay(s, Reply{Text: msgBadTarget, Keyboard: cancelKeyboard()})
	}

	s.PendingTargetUserID = target
	return next(StateBanReason, Reply{Text: msgAskBanReason, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleBanReason(ctx context.Context, s *session.Session, in Input) Step {
	reason, ok := textOf(in)
	if !ok {
		return stay(s, Reply{Text: msgAskBanReason, Keyboard: cancelKeyboard()})
	}

	ban := models.BanRecord{
		UserID:   s.PendingTargetUserID,
		Reason:   reason,
		BannedAt: e.now(),
	}
	if err := e.repo.SaveBan(ctx, ban); err != nil {
		e.logger.Error("Failed to save ban", zap.Error(err), zap.Int64("target_id", ban.UserID))
		return stay(s, failureReply())
	}

	e.logger.Info("User banned",
		zap.Int64("user_id", s.UserID),
		zap.Int64("target_id", ban.UserID),
		zap.String("reason", reason))
	e.recordActivity(ctx, models.Activity{
		At:        ban.BannedAt,
		Kind:      models.ActivityUserBanned,
		ActorID:   s.UserID,
		SubjectID: ban.UserID,
	})

	return done(Reply{Text: fmt.Sprintf(msgBanned, ban.UserID), Keyboard: mainKeyboard(e.profile)})
}

func (e *Engine) startStats(ctx context.Context, s *session.Session, in Input) Step {
	if target, ok := parseUserID(in.Args); ok {
		return e.showStats(ctx, s, target)
	}
	return next(StateStatsTarget, Reply{Text: msgAskTarget, Keyboard: cancelKeyboard()})
}

func (e *Engine) handleStatsTarget(ctx context.Context, s *session.Session, in Input) Step {
	target, ok := parseUserID(in.Text)
	if !ok {
		return stay(s, Reply{Text: msgBadTarget, Keyboard: cancelKeyboard()})
	}
	return e.showStats(ctx, s, target)
}

func (e *Engine) showStats(ctx context.Context, s *session.Session, target int64) Step {
	stats, err := e.activity.UserStats(ctx, target)
	if err != nil {
		e.logger.Error("Failed to get user stats", zap.Error(err), zap.Int64("target_id", target))
		return next(StateStatsTarget, failureReply())
	}
	// Contributions are counted from the repository, not the activity log
	stats.Contributed, err = e.repo.CountDrugsByContributor(ctx, target)
	if err != nil {
		e.logger.Error("Failed to count contributed drugs", zap.Error(err), zap.Int64("target_id", target))
		return next(StateStatsTarget, failureReply())
	}

	isAdmin := true
	if _, err := e.repo.GetAdmin(ctx, target); errors.Is(err, storage.ErrNotFound) {
		isAdmin = false
	} else if err != nil {
		e.logger.Error("Failed to check admin", zap.Error(err), zap.Int64("target_id", target))
		return next(StateStatsTarget, failureReply())
	}

	ban, err := e.repo.GetBan(ctx, target)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.logger.Error("Failed to check ban", zap.Error(err), zap.Int64("target_id", target))
		return next(StateStatsTarget, failureReply())
	}

	s.PendingTargetUserID = target
	return next(StateStatsShown,
		Reply{Text: statsText(target, stats, isAdmin, ban), HTML: true},
		Reply{Text: msgStatsShown, Keyboard: statsKeyboard()})
}

// handleStatsShown serves exports until the superuser finishes
func (e *Engine) handleStatsShown(ctx context.Context, s *session.Session, in Input) Step {
	var (
		doc *Document
		err error
	)

	switch token := strings.TrimSpace(in.Text); {
	case token == LabelFinish || strings.EqualFold(token, TokenFinish):
		return done(Reply{Text: msgStatsFinished, Keyboard: mainKeyboard(e.profile)})
	case token == LabelExportDrugs || strings.EqualFold(token, TokenExportDrugs):
		doc, err = e.exportDrugs(ctx, s.PendingTargetUserID)
	case token == LabelExportReport || strings.EqualFold(token, TokenExportReports):
		doc, err = e.exportActivity(ctx, s.PendingTargetUserID, models.ActivityReportFiled, "reports")
	case token == LabelExportLog || strings.EqualFold(token, TokenExportActivity):
		doc, err = e.exportActivity(ctx, s.PendingTargetUserID, "", "activity")
	default:
		return stay(s, Reply{Text: msgStatsShown, Keyboard: statsKeyboard()})
	}

	if err != nil {
		e.logger.Error("Failed to export", zap.Error(err), zap.Int64("target_id", s.PendingTargetUserID))
		return stay(s, failureReply())
	}
	return stay(s, Reply{Text: fmt.Sprintf(msgExportCaption, doc.Name), Document: doc, Keyboard: statsKeyboard()})
}

func (e *Engine) exportDrugs(ctx context.Context, userID int64) (*Document, error) {
	drugs, err := e.repo.ListDrugsByContributor(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range drugs {
		drugs[i].Photo = nil
	}
	if drugs == nil {
		drugs = []models.DrugRecord{}
	}
	return jsonDocument(fmt.Sprintf("drugs_%d.json", userID), drugs)
}

func (e *Engine) exportActivity(ctx context.Context, userID int64, kind, name string) (*Document, error) {
	activity, err := e.activity.ListActivity(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		activity = []models.Activity{}
	}
	return jsonDocument(fmt.Sprintf("%s_%d.json", name, userID), activity)
}

func jsonDocument(name string, v interface{}) (*Document, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return &Document{Name: name, Data: data}, nil
}

func statsText(target int64, stats models.ActivityStats, isAdmin bool, ban *models.BanRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Статистика користувача %d</b>\n\n", target)
	fmt.Fprintf(&b, "Додано медикаментів: %d\n", stats.Contributed)
	fmt.Fprintf(&b, "Скарг подано: %d\n", stats.ReportsFiled)
	fmt.Fprintf(&b, "Скарг на додані медикаменти: %d\n", stats.ReportsReceived)
	fmt.Fprintf(&b, "Адміністратор: %s\n", yesNo(isAdmin))
	if ban != nil {
		fmt.Fprintf(&b, "Заблоковано: так (%s)", html.EscapeString(ban.Reason))
	} else {
		b.WriteString("Заблоковано: ні")
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "так"
	}
	return "ні"
}

// parseUserID accepts a positive chat user id
func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
