package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode"

	"medbot/internal/barcode"
	"medbot/internal/face"
	"medbot/internal/mailer"
	"medbot/internal/models"
	"medbot/internal/session"
	"medbot/internal/storage/stubs"
	"medbot/internal/validators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	superuserID   int64 = 1000
	adminID       int64 = 10
	volunteerID   int64 = 20
	ukDescription       = "Нестероїдний протизапальний засіб для зняття болю"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeDecoder maps photo contents to barcodes
type fakeDecoder struct {
	codes map[string]string
}

func (d *fakeDecoder) Decode(img []byte) (string, error) {
	if code, ok := d.codes[string(img)]; ok {
		return code, nil
	}
	return "", barcode.ErrNotFound
}

// fakeFaces maps photo contents to verdicts
type fakeFaces struct {
	verdicts map[string]face.Verdict
}

func (f *fakeFaces) Classify(img []byte) (face.Result, error) {
	v, ok := f.verdicts[string(img)]
	if !ok {
		return face.Result{}, errors.New("image: unknown format")
	}
	if v == face.Single {
		return face.Result{Verdict: v, Face: []byte("cropped:" + string(img))}, nil
	}
	return face.Result{Verdict: v}, nil
}

// fakeDetector recognises Ukrainian by its distinctive letters
type fakeDetector struct{}

func (fakeDetector) Detect(text string) (string, error) {
	if strings.ContainsAny(text, "іїєґІЇЄҐ") {
		return "uk", nil
	}
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return "ru", nil
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			return "en", nil
		}
	}
	return "", validators.ErrUndetected
}

type fakeFeedback struct {
	mu   sync.Mutex
	sent []mailer.Feedback
	err  error
}

func (f *fakeFeedback) SendFeedback(ctx context.Context, fb mailer.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, fb)
	return nil
}

// failingStore fails every operation
type failingStore struct{}

func (failingStore) Load(context.Context, int64) (*session.Session, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Save(context.Context, *session.Session) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, int64) error {
	return errors.New("connection refused")
}

func (failingStore) Close() error {
	return nil
}

type fixture struct {
	t        *testing.T
	engine   *Engine
	db       *stubs.MockDB
	sessions *session.MemoryStore
	decoder  *fakeDecoder
	faces    *fakeFaces
	feedback *fakeFeedback
}

func newFixture(t *testing.T, profile Profile) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		db:       stubs.NewMockDB(),
		sessions: session.NewMemoryStore(),
		decoder:  &fakeDecoder{codes: make(map[string]string)},
		faces:    &fakeFaces{verdicts: make(map[string]face.Verdict)},
		feedback: &fakeFeedback{},
	}
	f.engine = New(Deps{
		Repository: f.db,
		Activity:   f.db,
		Sessions:   f.sessions,
		Decoder:    f.decoder,
		Faces:      f.faces,
		Detector:   fakeDetector{},
		Feedback:   f.feedback,
		Logger:     zap.NewNop(),
	}, Config{
		Profile:        profile,
		SuperuserIDs:   []int64{superuserID},
		TargetLanguage: "uk",
	})
	f.engine.now = func() time.Time { return fixedNow }

	require.NoError(t, f.db.InsertAdmin(context.Background(), models.AdminRecord{
		UserID:      adminID,
		ContactInfo: "+380501234567",
	}))
	return f
}

func (f *fixture) text(userID int64, text string) []Reply {
	return f.engine.Handle(context.Background(), Input{UserID: userID, Text: text})
}

func (f *fixture) command(userID int64, cmd, args string) []Reply {
	return f.engine.Handle(context.Background(), Input{UserID: userID, Command: cmd, Args: args})
}

func (f *fixture) photo(userID int64, photo string) []Reply {
	return f.engine.Handle(context.Background(), Input{UserID: userID, Photo: []byte(photo)})
}

// state returns the user's current state, idle when there is no session
func (f *fixture) state(userID int64) session.State {
	f.t.Helper()
	s, err := f.sessions.Load(context.Background(), userID)
	if errors.Is(err, session.ErrNotFound) {
		return session.StateIdle
	}
	require.NoError(f.t, err)
	return s.State
}

func (f *fixture) session(userID int64) *session.Session {
	f.t.Helper()
	s, err := f.sessions.Load(context.Background(), userID)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) hasSession(userID int64) bool {
	_, err := f.sessions.Load(context.Background(), userID)
	return err == nil
}

// joined concatenates reply texts for substring assertions
func joined(replies []Reply) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n")
}

func TestHandle_StartShowsMainKeyboard(t *testing.T) {
	f := newFixture(t, SearchBot)

	replies := f.command(volunteerID, "start", "")
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Привіт")
	assert.Equal(t, mainKeyboard(SearchBot), replies[0].Keyboard)
	assert.False(t, f.hasSession(volunteerID))
}

func TestHandle_UnknownInput(t *testing.T) {
	f := newFixture(t, SearchBot)

	replies := f.text(volunteerID, "щось незрозуміле")
	require.Len(t, replies, 1)
	assert.Equal(t, msgNotUnderstood, replies[0].Text)

	replies = f.command(volunteerID, "nonsense", "")
	require.Len(t, replies, 1)
	assert.Equal(t, msgUnknownCmd, replies[0].Text)

	// Admin-only commands are not part of the search bot
	replies = f.command(superuserID, "ban", "")
	assert.Equal(t, msgUnknownCmd, replies[0].Text)
}

func TestHandle_LabelsSelectEntries(t *testing.T) {
	f := newFixture(t, SearchBot)

	f.text(volunteerID, LabelScan)
	assert.Equal(t, StateLookupScanning, f.state(volunteerID))

	replies := f.text(volunteerID, LabelCancelScan)
	assert.Equal(t, msgCancelled, replies[0].Text)
	assert.False(t, f.hasSession(volunteerID))

	replies = f.text(volunteerID, LabelAbout)
	assert.Contains(t, replies[0].Text, "Слава Україні")

	replies = f.text(volunteerID, LabelInstructions)
	assert.True(t, replies[0].HTML)
	assert.Contains(t, replies[0].Text, "/scan")
}

func TestHandle_FileWarning(t *testing.T) {
	f := newFixture(t, SearchBot)

	replies := f.engine.Handle(context.Background(), Input{UserID: volunteerID, FileAttached: true})
	require.Len(t, replies, 1)
	assert.Equal(t, msgFileWarning, replies[0].Text)
	assert.False(t, f.hasSession(volunteerID))
}

func TestHandle_CancelWithoutConversation(t *testing.T) {
	f := newFixture(t, SearchBot)

	replies := f.command(volunteerID, "cancel", "")
	require.Len(t, replies, 1)
	assert.Equal(t, msgCancelled, replies[0].Text)
	assert.False(t, f.hasSession(volunteerID))
}

func TestHandle_CommandInterruptsConversation(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.decoder.codes["box"] = "4820000000001"

	f.command(adminID, "add", "")
	f.photo(adminID, "box")
	require.Equal(t, StateDrugName, f.state(adminID))

	f.command(adminID, "search", "")
	assert.Equal(t, StateSearchQuery, f.state(adminID))
	assert.Empty(t, f.session(adminID).Draft.Code)
}

func TestHandle_SessionStoreFailure(t *testing.T) {
	f := newFixture(t, SearchBot)
	engine := New(Deps{
		Repository: f.db,
		Activity:   f.db,
		Sessions:   failingStore{},
		Decoder:    f.decoder,
		Detector:   fakeDetector{},
		Feedback:   f.feedback,
	}, Config{Profile: SearchBot})

	replies := engine.Handle(context.Background(), Input{UserID: volunteerID, Command: "scan"})
	require.Len(t, replies, 1)
	assert.Equal(t, msgFailure, replies[0].Text)
}

func TestHandle_SessionsArePerUser(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.decoder.codes["a"] = "111"
	f.decoder.codes["b"] = "222"

	f.command(adminID, "add", "")
	f.command(superuserID, "add", "")
	f.photo(adminID, "a")
	f.photo(superuserID, "b")
	f.text(adminID, "Аспірин")
	f.text(superuserID, "Нурофен")

	assert.Equal(t, "111", f.session(adminID).Draft.Code)
	assert.Equal(t, "Аспірин", f.session(adminID).Draft.Name)
	assert.Equal(t, "222", f.session(superuserID).Draft.Code)
	assert.Equal(t, "Нурофен", f.session(superuserID).Draft.Name)
}

func TestHandle_ConcurrentUsers(t *testing.T) {
	f := newFixture(t, SearchBot)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			f.command(userID, "search", "")
			f.text(userID, "парацетамол")
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 0, f.sessions.Len())
}
