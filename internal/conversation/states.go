package conversation

import (
	"context"

	"medbot/internal/session"
)

// Conversation states
const (
	StateDrugBarcode     session.State = "drug.barcode"
	StateDrugName        session.State = "drug.name"
	StateDrugIngredient  session.State = "drug.ingredient"
	StateDrugDescription session.State = "drug.description"
	StateDrugPhoto       session.State = "drug.photo"
	StateDrugConfirm     session.State = "drug.confirm"
	StateDrugEdit        session.State = "drug.edit"

	StateLookupScanning session.State = "lookup.scanning"
	StateLookupOffer    session.State = "lookup.offer"

	StateReportText   session.State = "report.text"
	StateSearchQuery  session.State = "search.query"
	StateFeedbackText session.State = "feedback.text"

	StateRegisterContact session.State = "register.contact"
	StateRegisterFace    session.State = "register.face"

	StateBanTarget session.State = "ban.target"
	StateBanReason session.State = "ban.reason"

	StateStatsTarget session.State = "stats.target"
	StateStatsShown  session.State = "stats.shown"
)

// entry is a command or button that starts a workflow
type entry struct {
	name   string
	labels []string
	access Access
	start  stateHandler
}

// registerStates fills the transition table
func (e *Engine) registerStates() {
	e.handlers = map[session.State]stateHandler{
		StateDrugBarcode:     e.handleDrugBarcode,
		StateDrugName:        e.handleDrugName,
		StateDrugIngredient:  e.handleDrugIngredient,
		StateDrugDescription: e.handleDrugDescription,
		StateDrugPhoto:       e.handleDrugPhoto,
		StateDrugConfirm:     e.handleDrugConfirm,
		StateDrugEdit:        e.handleDrugEdit,

		StateLookupScanning: e.handleScanning,
		StateLookupOffer:    e.handleOffer,

		StateReportText:   e.handleReportText,
		StateSearchQuery:  e.handleSearchQuery,
		StateFeedbackText: e.handleFeedbackText,

		StateRegisterContact: e.handleRegisterContact,
		StateRegisterFace:    e.handleRegisterFace,

		StateBanTarget: e.handleBanTarget,
		StateBanReason: e.handleBanReason,

		StateStatsTarget: e.handleStatsTarget,
		StateStatsShown:  e.handleStatsShown,
	}

	e.access = map[session.State]Access{
		StateDrugBarcode:     AccessContributor,
		StateDrugName:        AccessContributor,
		StateDrugIngredient:  AccessContributor,
		StateDrugDescription: AccessContributor,
		StateDrugPhoto:       AccessContributor,
		StateDrugConfirm:     AccessContributor,
		StateDrugEdit:        AccessContributor,

		StateLookupScanning: AccessMember,
		StateLookupOffer:    AccessMember,

		StateReportText:   AccessMember,
		StateSearchQuery:  AccessMember,
		StateFeedbackText: AccessMember,

		StateRegisterContact: AccessRegistration,
		StateRegisterFace:    AccessRegistration,

		StateBanTarget: AccessSuperuser,
		StateBanReason: AccessSuperuser,

		StateStatsTarget: AccessSuperuser,
		StateStatsShown:  AccessSuperuser,
	}
}

// registerEntries builds the command and label tables of the profile
func (e *Engine) registerEntries() {
	var entries []*entry
	if e.profile == AdminBot {
		entries = []*entry{
			{name: "start", access: AccessPublic, start: e.startMenu},
			{name: "help", labels: []string{LabelInstructions}, access: AccessPublic, start: e.startHelp},
			{name: "menu", labels: []string{LabelUnderstood, LabelNo}, access: AccessPublic, start: e.startOkay},
			{name: "scan", labels: []string{LabelCheck, LabelAgain}, access: AccessMember, start: e.startScan},
			{name: "add", labels: []string{LabelAdd}, access: AccessContributor, start: e.startAdd},
			{name: "search", access: AccessMember, start: e.startSearch},
			{name: "review", access: AccessContributor, start: e.startReview},
			{name: "report", access: AccessMember, start: e.startReport},
			{name: "feedback", access: AccessMember, start: e.startFeedback},
			{name: "authorize", access: AccessRegistration, start: e.startRegister},
			{name: "ban", access: AccessSuperuser, start: e.startBan},
			{name: "statistics", access: AccessSuperuser, start: e.startStats},
		}
	} else {
		entries = []*entry{
			{name: "start", access: AccessPublic, start: e.startMenu},
			{name: "help", labels: []string{LabelInstructions}, access: AccessPublic, start: e.startHelp},
			{name: "about", labels: []string{LabelAbout}, access: AccessPublic, start: e.startAbout},
			{name: "scan", labels: []string{LabelScan, LabelUnderstood, LabelAgain}, access: AccessMember, start: e.startScan},
			{name: "search", labels: []string{LabelSearch}, access: AccessMember, start: e.startSearch},
			{name: "report", labels: []string{LabelReport}, access: AccessMember, start: e.startReport},
			{name: "feedback", access: AccessMember, start: e.startFeedback},
		}
	}

	e.commands = make(map[string]*entry, len(entries))
	e.labels = make(map[string]*entry)
	for _, ent := range entries {
		e.commands[ent.name] = ent
		for _, label := range ent.labels {
			e.labels[label] = ent
		}
	}
}

func (e *Engine) startMenu(ctx context.Context, s *session.Session, in Input) Step {
	text := msgStartSearch
	if e.profile == AdminBot {
		text = msgStartAdmin
	}
	return done(Reply{Text: text, HTML: true, Keyboard: mainKeyboard(e.profile)})
}

func (e *Engine) startHelp(ctx context.Context, s *session.Session, in Input) Step {
	return done(Reply{Text: msgInstructions, HTML: true, Keyboard: [][]string{{LabelUnderstood}}})
}

func (e *Engine) startAbout(ctx context.Context, s *session.Session, in Input) Step {
	return done(Reply{Text: msgAbout, Keyboard: [][]string{{LabelUnderstood}}})
}

func (e *Engine) startOkay(ctx context.Context, s *session.Session, in Input) Step {
	return done(Reply{Text: msgOkay, Keyboard: mainKeyboard(e.profile)})
}
