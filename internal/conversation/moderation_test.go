package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"medbot/internal/face"
	"medbot/internal/models"
	"medbot/internal/session"
	"medbot/internal/storage/stubs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_AlreadyAdmin(t *testing.T) {
	f := newFixture(t, AdminBot)

	replies := f.command(adminID, "authorize", "")
	require.Len(t, replies, 1)
	assert.Equal(t, msgAlreadyAdmin, replies[0].Text)
	assert.False(t, f.hasSession(adminID))
}

func TestRegister_Flow(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.faces.verdicts["crowd"] = face.TooMany
	f.faces.verdicts["landscape"] = face.NotFound
	f.faces.verdicts["selfie"] = face.Single
	ctx := context.Background()

	replies := f.command(volunteerID, "authorize", "")
	require.Len(t, replies, 1)
	assert.True(t, replies[0].RequestContact)
	assert.Equal(t, StateRegisterContact, f.state(volunteerID))

	replies = f.text(volunteerID, "   ")
	assert.Equal(t, msgBadContact, replies[0].Text)

	replies = f.text(volunteerID, strings.Repeat("к", 257))
	assert.Equal(t, msgBadContact, replies[0].Text)
	assert.Equal(t, StateRegisterContact, f.state(volunteerID))

	replies = f.engine.Handle(ctx, Input{UserID: volunteerID, Contact: "+380671112233"})
	assert.Equal(t, msgAskFace, replies[0].Text)
	assert.Equal(t, StateRegisterFace, f.state(volunteerID))
	assert.Equal(t, "+380671112233", f.session(volunteerID).Contact)

	replies = f.photo(volunteerID, "crowd")
	assert.Equal(t, msgFaceTooMany, replies[0].Text)

	replies = f.photo(volunteerID, "landscape")
	assert.Equal(t, msgFaceNotFound, replies[0].Text)

	replies = f.photo(volunteerID, "not-an-image")
	assert.Equal(t, msgFaceUnreadable, replies[0].Text)
	assert.Equal(t, StateRegisterFace, f.state(volunteerID))

	_, err := f.db.GetAdmin(ctx, volunteerID)
	require.Error(t, err)

	replies = f.photo(volunteerID, "selfie")
	assert.Equal(t, msgRegistered, replies[0].Text)
	assert.False(t, f.hasSession(volunteerID))

	admin, err := f.db.GetAdmin(ctx, volunteerID)
	require.NoError(t, err)
	assert.Equal(t, "+380671112233", admin.ContactInfo)
	assert.Equal(t, []byte("cropped:selfie"), admin.FacePhoto)
	assert.Equal(t, fixedNow, admin.RegisteredAt)

	activity, err := f.db.ListActivity(ctx, volunteerID, models.ActivityAdminRegistered)
	require.NoError(t, err)
	assert.Len(t, activity, 1)

	// The new admin may now add drugs
	f.command(volunteerID, "add", "")
	assert.Equal(t, StateDrugBarcode, f.state(volunteerID))
}

func TestRegister_ContactMaxLength(t *testing.T) {
	f := newFixture(t, AdminBot)

	f.command(volunteerID, "authorize", "")
	f.text(volunteerID, strings.Repeat("к", 256))
	assert.Equal(t, StateRegisterFace, f.state(volunteerID))
}

func TestBan_Flow(t *testing.T) {
	f := newFixture(t, AdminBot)
	ctx := context.Background()

	f.command(superuserID, "ban", "")
	require.Equal(t, StateBanTarget, f.state(superuserID))

	for _, bad := range []string{"abc", "-5", "0"} {
		replies := f.text(superuserID, bad)
		assert.Equal(t, msgBadTarget, replies[0].Text, bad)
	}

	replies := f.text(superuserID, "10")
	assert.Equal(t, msgAskBanReason, replies[0].Text)
	assert.Equal(t, StateBanReason, f.state(superuserID))

	replies = f.text(superuserID, "spam")
	assert.Equal(t, "🚫 Користувача 10 заблоковано", replies[0].Text)
	assert.False(t, f.hasSession(superuserID))

	ban, err := f.db.GetBan(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "spam", ban.Reason)
	assert.Equal(t, fixedNow, ban.BannedAt)

	activity, err := f.db.ListActivity(ctx, adminID, models.ActivityUserBanned)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, superuserID, activity[0].ActorID)

	banned, err := f.engine.IsBanned(ctx, adminID)
	require.NoError(t, err)
	assert.True(t, banned)

	// Banning again replaces the reason
	f.command(superuserID, "ban", "10")
	assert.Equal(t, StateBanReason, f.state(superuserID))
	f.text(superuserID, "fake records")

	ban, err = f.db.GetBan(ctx, adminID)
	require.NoError(t, err)
	assert.Equal(t, "fake records", ban.Reason)
}

func TestStatistics_ShowAndExport(t *testing.T) {
	f := newFixture(t, AdminBot)
	ctx := context.Background()

	require.NoError(t, f.db.InsertDrug(ctx, models.DrugRecord{
		Code:          "4820000000001",
		Name:          "Нурофен",
		Photo:         []byte("front"),
		ContributorID: adminID,
	}))
	for _, a := range []models.Activity{
		{At: fixedNow.Add(-2 * time.Hour), Kind: models.ActivityDrugAdded, ActorID: adminID, SubjectID: adminID, Barcode: "4820000000001"},
		{At: fixedNow.Add(-time.Hour), Kind: models.ActivityReportFiled, ActorID: volunteerID, SubjectID: adminID, Barcode: "4820000000001"},
		{At: fixedNow, Kind: models.ActivityReportFiled, ActorID: adminID, SubjectID: 30, Barcode: "4820000000077"},
	} {
		require.NoError(t, f.db.Record(ctx, a))
	}

	replies := f.command(superuserID, "statistics", "10")
	require.Len(t, replies, 2)
	assert.True(t, replies[0].HTML)
	assert.Contains(t, replies[0].Text, "Додано медикаментів: 1")
	assert.Contains(t, replies[0].Text, "Скарг подано: 1")
	assert.Contains(t, replies[0].Text, "Скарг на додані медикаменти: 1")
	assert.Contains(t, replies[0].Text, "Адміністратор: так")
	assert.Contains(t, replies[0].Text, "Заблоковано: ні")
	assert.Equal(t, statsKeyboard(), replies[1].Keyboard)
	assert.Equal(t, StateStatsShown, f.state(superuserID))

	replies = f.text(superuserID, LabelExportDrugs)
	require.Len(t, replies, 1)
	require.NotNil(t, replies[0].Document)
	assert.Equal(t, "drugs_10.json", replies[0].Document.Name)
	var drugs []models.DrugRecord
	require.NoError(t, json.Unmarshal(replies[0].Document.Data, &drugs))
	require.Len(t, drugs, 1)
	assert.Equal(t, "Нурофен", drugs[0].Name)
	assert.Nil(t, drugs[0].Photo)

	// Exports keep the statistics open
	assert.Equal(t, StateStatsShown, f.state(superuserID))

	replies = f.text(superuserID, LabelExportReport)
	require.NotNil(t, replies[0].Document)
	var reports []models.Activity
	require.NoError(t, json.Unmarshal(replies[0].Document.Data, &reports))
	assert.Len(t, reports, 2)
	for _, r := range reports {
		assert.Equal(t, models.ActivityReportFiled, r.Kind)
	}

	replies = f.text(superuserID, TokenExportActivity)
	require.NotNil(t, replies[0].Document)
	var all []models.Activity
	require.NoError(t, json.Unmarshal(replies[0].Document.Data, &all))
	require.Len(t, all, 3)
	assert.True(t, all[0].At.After(all[2].At))

	replies = f.text(superuserID, "щось інше")
	assert.Equal(t, msgStatsShown, replies[0].Text)

	replies = f.text(superuserID, LabelFinish)
	assert.Equal(t, msgStatsFinished, replies[0].Text)
	assert.False(t, f.hasSession(superuserID))
}

// lossyActivity drops every write but still answers queries
type lossyActivity struct {
	*stubs.MockDB
}

func (lossyActivity) Record(context.Context, models.Activity) error {
	return errors.New("clickhouse: connection reset")
}

func TestStatistics_ContributionsCountedFromRepository(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.engine.activity = lossyActivity{f.db}
	f.decoder.codes["package.jpg"] = "8801234567890"

	f.command(adminID, "add", "")
	f.photo(adminID, "package.jpg")
	f.text(adminID, "Ібупрофен")
	f.text(adminID, "Ібупрофен")
	f.text(adminID, ukDescription)
	f.text(adminID, LabelSkip)
	replies := f.text(adminID, TokenConfirm)
	require.Len(t, replies, 1)
	require.Equal(t, msgInserted, replies[0].Text)

	stats, err := f.db.UserStats(context.Background(), adminID)
	require.NoError(t, err)
	require.Zero(t, stats.Contributed, "activity write should have been lost")

	replies = f.command(superuserID, "statistics", "10")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Додано медикаментів: 1")

	replies = f.text(superuserID, LabelExportDrugs)
	require.NotNil(t, replies[0].Document)
	var drugs []models.DrugRecord
	require.NoError(t, json.Unmarshal(replies[0].Document.Data, &drugs))
	assert.Len(t, drugs, 1)
}

// uncountableRepo fails only the contribution count
type uncountableRepo struct {
	*stubs.MockDB
}

func (uncountableRepo) CountDrugsByContributor(context.Context, int64) (int, error) {
	return 0, errors.New("mongo: server selection timeout")
}

func TestStatistics_CountFailure(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.engine.repo = uncountableRepo{f.db}

	replies := f.command(superuserID, "statistics", "10")
	require.Len(t, replies, 1)
	assert.Equal(t, msgFailure, replies[0].Text)
	assert.Equal(t, StateStatsTarget, f.state(superuserID))
}

func TestStatistics_UnknownUser(t *testing.T) {
	f := newFixture(t, AdminBot)

	f.command(superuserID, "statistics", "")
	require.Equal(t, StateStatsTarget, f.state(superuserID))

	replies := f.text(superuserID, "nobody")
	assert.Equal(t, msgBadTarget, replies[0].Text)

	replies = f.text(superuserID, "777")
	require.Len(t, replies, 2)
	assert.Contains(t, replies[0].Text, "Додано медикаментів: 0")
	assert.Contains(t, replies[0].Text, "Адміністратор: ні")

	replies = f.text(superuserID, LabelExportDrugs)
	require.NotNil(t, replies[0].Document)
	assert.JSONEq(t, "[]", string(replies[0].Document.Data))
}

func TestAccess_SuperuserOnly(t *testing.T) {
	f := newFixture(t, AdminBot)

	for _, cmd := range []string{"ban", "statistics"} {
		for _, userID := range []int64{adminID, volunteerID} {
			replies := f.command(userID, cmd, "")
			require.Len(t, replies, 1)
			assert.Equal(t, msgDeniedSuperuser, replies[0].Text, cmd)
			assert.False(t, f.hasSession(userID), cmd)
		}
	}
}

func TestAccess_UnregisteredCannotAdd(t *testing.T) {
	f := newFixture(t, AdminBot)

	replies := f.command(volunteerID, "add", "")
	assert.Equal(t, msgDeniedContributor, replies[0].Text)
	assert.False(t, f.hasSession(volunteerID))

	replies = f.text(volunteerID, LabelAdd)
	assert.Equal(t, msgDeniedContributor, replies[0].Text)

	// Superusers need no registration
	f.command(superuserID, "add", "")
	assert.Equal(t, StateDrugBarcode, f.state(superuserID))
}

func TestAccess_BannedUserDenied(t *testing.T) {
	f := newFixture(t, AdminBot)
	ctx := context.Background()
	require.NoError(t, f.db.SaveBan(ctx, models.BanRecord{UserID: volunteerID, Reason: "spam", BannedAt: fixedNow}))

	for _, cmd := range []string{"add", "scan", "authorize", "report", "search", "feedback"} {
		replies := f.command(volunteerID, cmd, "")
		require.Len(t, replies, 1, cmd)
		assert.Equal(t, msgDeniedBanned, replies[0].Text, cmd)
		assert.False(t, f.hasSession(volunteerID), cmd)
	}

	replies := f.photo(volunteerID, "anything")
	assert.Equal(t, msgDeniedBanned, replies[0].Text)

	// Help stays available
	replies = f.command(volunteerID, "help", "")
	assert.NotEqual(t, msgDeniedBanned, replies[0].Text)
}

func TestAccess_BanTakesEffectMidConversation(t *testing.T) {
	f := newFixture(t, AdminBot)
	f.decoder.codes["box"] = "4820000000001"

	f.command(adminID, "add", "")
	f.photo(adminID, "box")
	require.Equal(t, StateDrugName, f.state(adminID))

	f.command(superuserID, "ban", "10")
	f.text(superuserID, "fake records")

	replies := f.text(adminID, "Нурофен")
	require.Len(t, replies, 1)
	assert.Equal(t, msgDeniedBanned, replies[0].Text)

	s := f.session(adminID)
	assert.Equal(t, StateDrugName, s.State)
	assert.Empty(t, s.Draft.Name)

	exists, err := f.db.DrugExists(context.Background(), "4820000000001")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAccess_SearchBotBanned(t *testing.T) {
	f := newFixture(t, SearchBot)
	require.NoError(t, f.db.SaveBan(context.Background(), models.BanRecord{UserID: volunteerID, Reason: "abuse"}))

	replies := f.text(volunteerID, LabelScan)
	assert.Equal(t, msgDeniedBanned, replies[0].Text)
	assert.Equal(t, session.StateIdle, f.state(volunteerID))

	replies = f.text(volunteerID, LabelAbout)
	assert.Contains(t, replies[0].Text, "Слава Україні")
}
