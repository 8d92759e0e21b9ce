package conversation

import (
	"fmt"
	"html"
	"strings"

	"medbot/internal/models"
	"medbot/internal/validators"
)

// Button labels
const (
	LabelScan         = "Сканувати"
	LabelCheck        = "Перевірити наявність"
	LabelAdd          = "Додати новий медикамент"
	LabelInstructions = "Інструкції"
	LabelAbout        = "Про мене"
	LabelSearch       = "Пошук"
	LabelReport       = "Поскаржитися"
	LabelUnderstood   = "Зрозуміло!"
	LabelAgain        = "Ще раз"
	LabelFinishScan   = "Завершити сканування"
	LabelCancelScan   = "Відмінити сканування"
	LabelCancelAdd    = "Скасувати додавання"
	LabelCancel       = "Скасувати"
	LabelYes          = "Так"
	LabelNo           = "Ні"
	LabelSkip         = "Пропустити"
	LabelConfirm      = "Так, додати до бази даних"
	LabelReject       = "Ні, скасувати"
	LabelExportDrugs  = "Експорт медикаментів"
	LabelExportReport = "Експорт скарг"
	LabelExportLog    = "Експорт активності"
	LabelFinish       = "Завершити"
)

// Tokens accepted at the confirmation and statistics steps.
// Inline buttons send them as callback data.
const (
	TokenConfirm        = "confirm"
	TokenReject         = "reject"
	TokenEditPrefix     = "edit:"
	TokenSkip           = "skip"
	TokenFinish         = "finish"
	TokenExportDrugs    = "export drugs"
	TokenExportReports  = "export reports"
	TokenExportActivity = "export activity"
)

// Draft fields that can be re-entered from the confirmation step
const (
	FieldName             = "name"
	FieldActiveIngredient = "active_ingredient"
	FieldDescription      = "description"
	FieldPhoto            = "photo"
)

const (
	msgStartSearch = "🇺🇦 <b>Привіт! Я бот для пошуку медикаментів.</b>\n" +
		"Я допоможу Вам знайти коротку інформацію про ліки.\n\n" +
		"Оберіть опцію, будь ласка. Якщо ви користуєтесь ботом вперше - рекомендую подивитись розділ \"Інструкції\"\n\n" +
		"Це можна зробити будь-коли за допомогою команди <b>/help</b>"

	msgStartAdmin = "<b>Привіт! Я бот для адміністрування бази даних медикаментів.</b>\n\nОберіть опцію, будь ласка."

	msgInstructions = "🔍 Щоб відсканувати штрихкод та отримати опис ліків - надішліть мені фото пакування, " +
		"де я можу <b>чітко</b> побачити штрихкод.\n\n" +
		"▶️ Почати сканування у будь-який момент можна за допомогою команди <b>/scan</b>\n\n" +
		"✏️ Зверніть увагу, ви можете надсилати одразу декілька фотографій.\n\n" +
		"❗️ Переконайтесь, що фотографія <b>не розмита</b>, а штрихкод розташований <b>вертикально</b> " +
		"або <b>горизонтально</b>. Не фотографуйте надто далеко, та намагайтесь тримати камеру " +
		"<b>паралельно</b> до упаковки!\n" +
		"Це мінімізує кількість помилок та дозволить боту працювати коректно.\n\n" +
		"✅ Після сканування ви можете надсилати фото далі.\n" +
		"Аби завершити сканування - натисніть відповідну кнопку.\n\n" +
		"🔎 Шукати за назвою або діючою речовиною можна командою <b>/search</b>\n\n" +
		"↩️ Відмінити будь-яку дію можна командою <b>/cancel</b>\n\n" +
		"💬 Ви можете викликати це повідомлення у будь-який момент, надіславши команду <b>/help</b>"

	msgAbout = "Слава Україні! 🇺🇦\n\n" +
		"🤖 Я - бот, створений командою студентів зі Львова.\n\n" +
		"✅ Моє завдання - допомогти волонтерам, що працюють на пунктах сортування гуманітарної допомоги. " +
		"Я допоможу Вам знайти інформацію та короткий опис про медичні препарати за допомогою штрих-коду.\n\n" +
		"🥇 Це дозволить пришвидшити роботу, а також якість сортування медикаментів " +
		"для допомоги Збройним Силам України 💛💙"

	msgOkay          = "Гаразд"
	msgNotUnderstood = "Я вас не розумію 🧐.\nОберіть, будь ласка, одну з доступних опцій"
	msgUnknownCmd    = "Невідома команда. Скористайтеся /help, щоб переглянути доступні команди."
	msgCancelled     = "☑️ Гаразд, операцію скасовано"
	msgFileWarning   = "Будь ласка, використовуйте <b>фотографію</b>, а не файл."
	msgFailure       = "⚠️ Сталася помилка. Спробуйте, будь ласка, ще раз трохи згодом."

	msgDeniedBanned      = "⛔️ Ваш обліковий запис заблоковано. Ця дія недоступна."
	msgDeniedContributor = "⛔️ Ця дія доступна лише зареєстрованим адміністраторам. Скористайтеся командою /authorize."
	msgDeniedSuperuser   = "⛔️ У вас немає прав для цієї дії."

	msgScanSearch    = "Будь ласка, надішліть мені фото пакування, де я можу <b>чітко</b> побачити штрихкод."
	msgScanAdmin     = "Будь ласка, надсилайте мені фото пакувань, де я можу <b>чітко</b> побачити штрихкод для перевірки наявності."
	msgScanFinished  = "☑️ Сканування завершено"
	msgScanFailed    = "<b>На жаль, сталася помилка ❌</b>\nСпробуйте ще раз, або подивіться інструкції до сканування та переконайтесь, що робите все правильно."
	msgSendPhoto     = "Будь ласка, надішліть фото пакування зі штрихкодом."
	msgNotFound      = "❌ Штрих-код <b>%s</b> відсутній у моїй базі даних."
	msgNotFoundOffer = "❌ Штрих-код <b>%s</b> відсутній у моїй базі даних.\n\nЧи бажаєте Ви додати інформацію про цей медикамент?"
	msgFound         = "✅ Штрих-код <b>%s</b> наявний у моїй базі даних:\n\n%s"
	msgPhotoMissing  = "📷 Фото пакування відсутнє"
	msgAnswerYesNo   = "Оберіть, будь ласка, \"Так\" або \"Ні\""

	msgAddStart        = "Добре.\nСпершу, надішліть фото штрих-коду"
	msgAddFromScan     = "Добре.\nСпершу, надішліть назву медикаменту"
	msgBarcodeFailed   = "<b>На жаль, мені не вдалось відсканувати штрих-код ❌</b>\nПереконайтесь, що робите все правильно та надішліть фото ще раз, або подивіться інструкції до сканування за допомогою команди <b>/help</b>"
	msgDuplicate       = "⚠️ Медикамент з таким штрих-кодом вже присутній у базі даних."
	msgBarcodeOK       = "Штрих-код відскановано успішно ✅"
	msgAskName         = "Надішліть назву медикаменту"
	msgAskIngredient   = "Вкажіть, будь ласка, діючу речовину медикаменту"
	msgAskDescription  = "Тепер надішліть короткий опис даного препарату"
	msgAskPhoto        = "Надішліть фото пакування або натисніть \"Пропустити\""
	msgBadName         = "❌ Назва не може складатися лише з цифр або містити символи %s\nСпробуйте ще раз"
	msgBadIngredient   = "❌ Діюча речовина не може складатися лише з цифр або містити символи %s\nСпробуйте ще раз"
	msgTooFewWords     = "❌ Опис занадто короткий: потрібно щонайменше %d слів. Спробуйте ще раз"
	msgUnknownLanguage = "❌ Не вдалося визначити мову опису. Спробуйте ще раз"
	msgWrongLanguage   = "❌ Опис має бути написаний українською мовою (визначено: %s). Спробуйте ще раз"
	msgTextExpected    = "Будь ласка, надішліть текст"
	msgPhotoOrSkip     = "Будь ласка, надішліть фото або натисніть \"Пропустити\""
	msgSummary         = "<b>Введена інформація:</b>\n\n%s\n\n❓Ви точно бажаєте додати її до бази даних?"
	msgChooseOption    = "Оберіть, будь ласка, одну з опцій під повідомленням"
	msgInserted        = "✅ Препарат успішно додано до бази даних"
	msgAddRejected     = "☑️ Гаразд, додавання скасовано"
	msgEditName        = "Надішліть нову назву медикаменту"
	msgEditIngredient  = "Надішліть нову діючу речовину"
	msgEditDescription = "Надішліть новий опис препарату"
	msgEditPhoto       = "Надішліть нове фото пакування або натисніть \"Пропустити\", щоб прибрати фото"

	msgReportNoBarcode = "ℹ️ Спершу відскануйте штрих-код медикаменту, інформація про який містить помилку."
	msgReportAsk       = "Опишіть, будь ласка, що не так з інформацією про медикамент <b>%s</b>"
	msgReportGone      = "ℹ️ Цей медикамент більше не знайдено у базі даних."
	msgReportSaved     = "✅ Дякуємо! Скаргу збережено."

	msgSearchAsk     = "Введіть назву або діючу речовину для пошуку"
	msgSearchEmpty   = "Нічого не знайдено за запитом \"%s\""
	msgSearchResults = "🔍 Результати пошуку \"%s\":\n\n%s"

	msgReviewEmpty   = "Скарг немає ✅"
	msgReviewResults = "📋 Медикаменти зі скаргами:\n\n%s"

	msgFeedbackAsk    = "Напишіть, будь ласка, ваше повідомлення для команди розробників"
	msgFeedbackSent   = "✅ Дякуємо за відгук!"
	msgFeedbackFailed = "На жаль, не вдалося надіслати повідомлення 😔 Спробуйте ще раз трохи згодом."

	msgAlreadyAdmin   = "ℹ️ Ви вже зареєстровані як адміністратор."
	msgAskContact     = "Надішліть, будь ласка, свої контактні дані (номер телефону або email)"
	msgBadContact     = "❌ Контактні дані мають бути непорожніми та не довшими за 256 символів. Спробуйте ще раз"
	msgAskFace        = "Тепер надішліть своє фото, на якому чітко видно обличчя"
	msgFaceNotFound   = "❌ Обличчя не знайдено. Надішліть, будь ласка, інше фото"
	msgFaceTooMany    = "❌ На фото забагато облич. Надішліть фото, на якому лише ви"
	msgFaceUnreadable = "❌ Не вдалося обробити зображення. Надішліть, будь ласка, інше фото"
	msgRegistered     = "✅ Вас зареєстровано як адміністратора"

	msgAskTarget     = "Введіть ID користувача"
	msgBadTarget     = "❌ ID користувача має бути додатним числом. Спробуйте ще раз"
	msgAskBanReason  = "Вкажіть причину блокування"
	msgBanned        = "🚫 Користувача %d заблоковано"
	msgStatsShown    = "Оберіть, що експортувати, або натисніть \"Завершити\""
	msgStatsFinished = "☑️ Перегляд статистики завершено"
	msgExportCaption = "📎 %s"
)

var cancelLabels = map[string]bool{
	LabelCancelAdd:  true,
	LabelCancelScan: true,
	LabelCancel:     true,
}

func mainKeyboard(p Profile) [][]string {
	if p == AdminBot {
		return [][]string{{LabelCheck, LabelAdd, LabelInstructions}}
	}
	return [][]string{
		{LabelScan, LabelInstructions, LabelAbout},
		{LabelSearch, LabelReport},
	}
}

func cancelAddKeyboard() [][]string {
	return [][]string{{LabelCancelAdd}}
}

func cancelKeyboard() [][]string {
	return [][]string{{LabelCancel}}
}

func confirmChoices() [][]Choice {
	return [][]Choice{
		{{Label: "✅ " + LabelConfirm, Data: TokenConfirm}, {Label: "❌ " + LabelReject, Data: TokenReject}},
		{{Label: "✏️ Назва", Data: TokenEditPrefix + FieldName}, {Label: "✏️ Діюча речовина", Data: TokenEditPrefix + FieldActiveIngredient}},
		{{Label: "✏️ Опис", Data: TokenEditPrefix + FieldDescription}, {Label: "✏️ Фото", Data: TokenEditPrefix + FieldPhoto}},
	}
}

func statsKeyboard() [][]string {
	return [][]string{
		{LabelExportDrugs, LabelExportReport},
		{LabelExportLog},
		{LabelFinish},
	}
}

// drugDetails renders the stored fields of a drug as HTML
func drugDetails(d models.DrugRecord) string {
	return fmt.Sprintf("<b>Штрих-код</b>: %s\n<b>Назва</b>: %s\n<b>Діюча речовина</b>: %s\n<b>Опис</b>: %s",
		html.EscapeString(d.Code),
		html.EscapeString(d.Name),
		html.EscapeString(d.ActiveIngredient),
		html.EscapeString(d.Description))
}

func draftSummary(d models.DrugRecord) string {
	photo := "відсутнє"
	if d.HasPhoto() {
		photo = "додано"
	}
	return fmt.Sprintf(msgSummary, drugDetails(d)+"\n<b>Фото</b>: "+photo)
}

func drugList(drugs []models.DrugRecord) string {
	var b strings.Builder
	for i, d := range drugs {
		fmt.Fprintf(&b, "%d. <b>%s</b> (%s)", i+1, html.EscapeString(d.Name), html.EscapeString(d.Code))
		if d.ActiveIngredient != "" {
			fmt.Fprintf(&b, " - %s", html.EscapeString(d.ActiveIngredient))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func reviewList(drugs []models.DrugRecord) string {
	var b strings.Builder
	for i, d := range drugs {
		fmt.Fprintf(&b, "%d. <b>%s</b> (%s)\n%s\n\n", i+1, html.EscapeString(d.Name), html.EscapeString(d.Code), html.EscapeString(d.Report))
	}
	return strings.TrimRight(b.String(), "\n")
}

func nameRejection() string {
	return fmt.Sprintf(msgBadName, validators.ForbiddenSymbols)
}

func ingredientRejection() string {
	return fmt.Sprintf(msgBadIngredient, validators.ForbiddenSymbols)
}

// descriptionRejection explains a CheckDescription result
func descriptionRejection(result string) string {
	switch result {
	case validators.TooFewWords:
		return fmt.Sprintf(msgTooFewWords, validators.MinDescriptionWords)
	case validators.UnknownLanguage:
		return msgUnknownLanguage
	default:
		return fmt.Sprintf(msgWrongLanguage, html.EscapeString(result))
	}
}
