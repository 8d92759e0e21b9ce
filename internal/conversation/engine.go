// Package conversation implements the per-user state machine behind both bots:
// drug entry, lookup and complaints, search, feedback and moderation.
// It knows nothing about Telegram; the transport turns updates into Input
// and renders the returned Replies.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"medbot/internal/face"
	"medbot/internal/mailer"
	"medbot/internal/session"
	"medbot/internal/storage"
	"medbot/internal/validators"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Profile selects which bot the engine serves
type Profile int

const (
	// SearchBot serves volunteers looking up medicines
	SearchBot Profile = iota
	// AdminBot serves contributors and superusers
	AdminBot
)

func (p Profile) String() string {
	if p == AdminBot {
		return "admin"
	}
	return "search"
}

// Input is one inbound message with transport details stripped
type Input struct {
	UserID   int64
	Username string
	// Command is the slash command without the leading slash
	Command string
	Args    string
	// Text carries typed text, button labels and inline callback data
	Text    string
	Photo   []byte
	Contact string
	// FileAttached is set when an image arrived as a document instead of a photo
	FileAttached bool
}

// Choice is an inline button; Data comes back as Input.Text
type Choice struct {
	Label string
	Data  string
}

// Document is a generated file sent to the user
type Document struct {
	Name string
	Data []byte
}

// Reply is one outbound message
type Reply struct {
	Text string
	HTML bool
	// Photo, when set, is sent with Text as its caption
	Photo    []byte
	Document *Document
	Keyboard [][]string
	Choices  [][]Choice
	// RequestContact asks the transport to offer a share-contact button
	RequestContact bool
	RemoveKeyboard bool
}

// Step is the result of a state handler
type Step struct {
	Next    session.State
	Replies []Reply
}

// BarcodeDecoder extracts a barcode from an image
type BarcodeDecoder interface {
	Decode(img []byte) (string, error)
}

// FaceClassifier checks a registration photo
type FaceClassifier interface {
	Classify(img []byte) (face.Result, error)
}

// FeedbackSender delivers user feedback to the maintainers
type FeedbackSender interface {
	SendFeedback(ctx context.Context, fb mailer.Feedback) error
}

// Deps are the collaborators of the engine
type Deps struct {
	Repository storage.Repository
	Activity   storage.ActivityLog
	Sessions   session.Store
	Decoder    BarcodeDecoder
	Faces      FaceClassifier
	Detector   validators.Detector
	Feedback   FeedbackSender
	Logger     *zap.Logger
}

// Config holds engine settings
type Config struct {
	Profile        Profile
	SuperuserIDs   []int64
	TargetLanguage string
	SearchLimit    int
}

const (
	defaultTargetLanguage = "uk"
	defaultSearchLimit    = 10
)

type stateHandler func(ctx context.Context, s *session.Session, in Input) Step

// Engine drives the conversations of one bot
type Engine struct {
	profile        Profile
	repo           storage.Repository
	activity       storage.ActivityLog
	sessions       session.Store
	decoder        BarcodeDecoder
	faces          FaceClassifier
	detector       validators.Detector
	feedback       FeedbackSender
	logger         *zap.Logger
	validate       *validator.Validate
	superusers     map[int64]bool
	targetLanguage string
	searchLimit    int
	now            func() time.Time

	handlers map[session.State]stateHandler
	access   map[session.State]Access
	commands map[string]*entry
	labels   map[string]*entry
	guards   []guard
}

// New creates an engine
func New(deps Deps, cfg Config) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		profile:        cfg.Profile,
		repo:           deps.Repository,
		activity:       deps.Activity,
		sessions:       deps.Sessions,
		decoder:        deps.Decoder,
		faces:          deps.Faces,
		detector:       deps.Detector,
		feedback:       deps.Feedback,
		logger:         logger.With(zap.String("bot", cfg.Profile.String())),
		validate:       validator.New(),
		superusers:     make(map[int64]bool),
		targetLanguage: cfg.TargetLanguage,
		searchLimit:    cfg.SearchLimit,
		now:            time.Now,
	}
	if e.targetLanguage == "" {
		e.targetLanguage = defaultTargetLanguage
	}
	if e.searchLimit <= 0 {
		e.searchLimit = defaultSearchLimit
	}
	for _, id := range cfg.SuperuserIDs {
		e.superusers[id] = true
	}

	e.registerStates()
	e.registerEntries()
	e.guards = []guard{e.banGuard, e.contributorGuard, e.superuserGuard}
	return e
}

// Profile returns the bot the engine serves
func (e *Engine) Profile() Profile {
	return e.profile
}

// Handle processes one inbound message and returns the replies.
// Failures never escape: they are logged and turned into replies.
func (e *Engine) Handle(ctx context.Context, in Input) []Reply {
	s, err := e.sessions.Load(ctx, in.UserID)
	if errors.Is(err, session.ErrNotFound) {
		s = session.New(in.UserID)
	} else if err != nil {
		e.logger.Error("Failed to load session", zap.Error(err), zap.Int64("user_id", in.UserID))
		return []Reply{failureReply()}
	}

	e.logger.Debug("Handling input",
		zap.Int64("user_id", in.UserID),
		zap.String("state", string(s.State)),
		zap.String("command", in.Command),
		zap.Bool("photo", len(in.Photo) > 0))

	if in.FileAttached && len(in.Photo) == 0 {
		return []Reply{{Text: msgFileWarning, HTML: true, Keyboard: [][]string{{LabelAgain}}}}
	}

	if e.isCancel(in) {
		return e.cancel(ctx, s)
	}

	if in.Command != "" {
		ent, ok := e.commands[in.Command]
		if !ok {
			return []Reply{{Text: msgUnknownCmd}}
		}
		return e.enter(ctx, s, in, ent)
	}

	if s.Active() {
		handler, ok := e.handlers[s.State]
		if !ok {
			e.logger.Warn("Dropping session in unknown state",
				zap.Int64("user_id", in.UserID),
				zap.String("state", string(s.State)))
			return e.apply(ctx, s, Step{Next: session.StateIdle, Replies: []Reply{e.notUnderstood()}})
		}
		if denial, ok := e.authorize(ctx, in.UserID, e.access[s.State]); !ok {
			return []Reply{denial}
		}
		return e.apply(ctx, s, handler(ctx, s, in))
	}

	if ent, ok := e.labels[strings.TrimSpace(in.Text)]; ok {
		return e.enter(ctx, s, in, ent)
	}

	// A photo outside any conversation is treated as a scan
	if len(in.Photo) > 0 {
		return e.enter(ctx, s, in, e.commands["scan"])
	}

	return []Reply{e.notUnderstood()}
}

func (e *Engine) isCancel(in Input) bool {
	return in.Command == "cancel" || cancelLabels[strings.TrimSpace(in.Text)]
}

// cancel discards the conversation in progress
func (e *Engine) cancel(ctx context.Context, s *session.Session) []Reply {
	reply := Reply{Text: msgCancelled, Keyboard: mainKeyboard(e.profile)}
	if !s.Active() {
		return []Reply{reply}
	}

	e.logger.Info("Conversation cancelled",
		zap.Int64("user_id", s.UserID),
		zap.String("state", string(s.State)))

	if err := e.sessions.Delete(ctx, s.UserID); err != nil {
		e.logger.Error("Failed to delete session", zap.Error(err), zap.Int64("user_id", s.UserID))
		return []Reply{failureReply()}
	}
	return []Reply{reply}
}

// enter starts a workflow from an entry point, replacing any conversation in progress
func (e *Engine) enter(ctx context.Context, s *session.Session, in Input, ent *entry) []Reply {
	if denial, ok := e.authorize(ctx, in.UserID, ent.access); !ok {
		return []Reply{denial}
	}

	if s.Active() {
		e.logger.Info("Conversation interrupted",
			zap.Int64("user_id", s.UserID),
			zap.String("state", string(s.State)),
			zap.String("entry", ent.name))
	}

	lastBarcode := s.LastBarcode
	s.Reset()
	s.LastBarcode = lastBarcode

	return e.apply(ctx, s, ent.start(ctx, s, in))
}

// apply moves the session to the next state and persists it.
// An idle session is only kept while it remembers a scanned barcode.
func (e *Engine) apply(ctx context.Context, s *session.Session, step Step) []Reply {
	s.State = step.Next

	var err error
	if s.State == session.StateIdle {
		if s.LastBarcode != "" {
			lastBarcode := s.LastBarcode
			s.Reset()
			s.LastBarcode = lastBarcode
			err = e.sessions.Save(ctx, s)
		} else {
			err = e.sessions.Delete(ctx, s.UserID)
		}
	} else {
		err = e.sessions.Save(ctx, s)
	}

	if err != nil {
		e.logger.Error("Failed to store session",
			zap.Error(err),
			zap.Int64("user_id", s.UserID),
			zap.String("state", string(s.State)))
		return append(step.Replies, failureReply())
	}
	return step.Replies
}

func (e *Engine) notUnderstood() Reply {
	return Reply{Text: msgNotUnderstood, Keyboard: mainKeyboard(e.profile)}
}

func failureReply() Reply {
	return Reply{Text: msgFailure}
}

// stay keeps the session in its current state
func stay(s *session.Session, replies ...Reply) Step {
	return Step{Next: s.State, Replies: replies}
}

// done ends the conversation
func done(replies ...Reply) Step {
	return Step{Next: session.StateIdle, Replies: replies}
}

func next(state session.State, replies ...Reply) Step {
	return Step{Next: state, Replies: replies}
}
