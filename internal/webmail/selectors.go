package webmail

import (
	"regexp"

	"github.com/gotrs-io/mailflow/internal/browser"
)

var (
	blockedHeadingRx   = regexp.MustCompile(`(?i)Couldn[’']t sign you in`)
	recoveryHeadingRx  = regexp.MustCompile(`(?i)Make sure you can always sign in`)
	notNowRx           = regexp.MustCompile(`(?i)^Not now$`)
	cancelRx           = regexp.MustCompile(`(?i)^Cancel$`)
	composeDialogRx    = regexp.MustCompile(`(?i)New Message|Compose`)
	toRecipientsRx     = regexp.MustCompile(`(?i)To recipients`)
	sendRx             = regexp.MustCompile(`^Send`)
	messageSentRx      = regexp.MustCompile(`(?i)Message sent`)
	missingRecipientRx = regexp.MustCompile(`(?i)Missing recipient|Please specify at least one recipient`)
	okRx               = regexp.MustCompile(`(?i)^OK$`)
	discardDraftRx     = regexp.MustCompile(`(?i)Discard draft`)
	inboxLinkRx        = regexp.MustCompile(`^Inbox$`)
	sentLinkRx         = regexp.MustCompile(`^Sent$`)
	accountButtonRx    = regexp.MustCompile(`(?i)Google Account`)
	signOutRx          = regexp.MustCompile(`(?i)^Sign out$`)
	signedOutURLRx     = regexp.MustCompile(`(?i)accounts\.google\.com/.+(ServiceLogin|signin)`)
)

// Selectors is the catalog of targets for the webmail skin. Role-based
// strategies come first; CSS strategies are fallbacks for older skins.
type Selectors struct {
	EmailField     browser.Target
	IdentifierNext browser.Target
	PasswordField  browser.Target
	PasswordNext   browser.Target
	BlockedHeading browser.Target

	PasskeyHeading  browser.Target
	PasskeyNotNow   browser.Target
	RecoveryHeading browser.Target
	RecoveryCancel  browser.Target

	ComposeButton     browser.Target
	ComposeDialog     browser.Target
	ToRecipients      browser.Target
	ToFallback        browser.Target
	Subject           browser.Target
	Body              browser.Target
	SendButton        browser.Target
	SentToast         browser.Target
	MissingRecipient  browser.Target
	ErrorOK           browser.Target
	DiscardDraft      browser.Target
	SaveAndClose      browser.Target
	InboxLink         browser.Target
	SentLink          browser.Target
	FirstConversation browser.Target
	ThreadToolbar     browser.Target
	BackToInbox       browser.Target
	AccountButton     browser.Target
	SignOut           browser.Target
}

// GmailSelectors returns the catalog for the current Gmail skin.
func GmailSelectors() Selectors {
	dialog := browser.NewTarget("compose.dialog", browser.RoleMatching("dialog", composeDialogRx))
	blocked := browser.RoleMatching("heading", blockedHeadingRx).AtLevel(1)

	return Selectors{
		EmailField: browser.NewTarget("login.email",
			browser.Label("Email or phone"),
			browser.CSS(`input[type="email"]`)),
		IdentifierNext: browser.NewTarget("login.identifier-next",
			browser.Role("button", "Next"),
			browser.CSS("#identifierNext")),
		PasswordField: browser.NewTarget("login.password",
			browser.Label("Enter your password"),
			browser.CSS(`input[type="password"]`)),
		PasswordNext: browser.NewTarget("login.password-next",
			browser.Role("button", "Next"),
			browser.CSS("#passwordNext")),
		BlockedHeading: browser.NewTarget("login.blocked", blocked),

		PasskeyHeading: browser.NewTarget("interstitial.passkey",
			browser.Role("heading", "Sign in faster")),
		PasskeyNotNow: browser.NewTarget("interstitial.passkey.not-now",
			browser.RoleMatching("button", notNowRx)),
		RecoveryHeading: browser.NewTarget("interstitial.recovery",
			browser.RoleMatching("heading", recoveryHeadingRx)),
		RecoveryCancel: browser.NewTarget("interstitial.recovery.cancel",
			browser.RoleMatching("button", cancelRx)),

		ComposeButton: browser.NewTarget("inbox.compose",
			browser.Role("button", "Compose"),
			browser.CSS(`div[role="button"][gh="cm"]`),
			browser.CSS(`div[aria-label^="Compose"]`)),
		ComposeDialog: dialog,
		ToRecipients: browser.NewTarget("compose.to",
			browser.RoleMatching("combobox", toRecipientsRx)).In(dialog),
		ToFallback: browser.NewTarget("compose.to-fallback",
			browser.CSS(`textarea[name="to"], textarea[aria-label="To"], input[aria-label="To"]`)).In(dialog),
		Subject: browser.NewTarget("compose.subject",
			browser.CSS(`input[name="subjectbox"]`)).In(dialog),
		Body: browser.NewTarget("compose.body",
			browser.CSS(`div[aria-label="Message Body"]`)).In(dialog),
		SendButton: browser.NewTarget("compose.send",
			browser.RoleMatching("button", sendRx)).In(dialog),
		SentToast: browser.NewTarget("compose.sent-toast",
			browser.CSS(`[role="alert"], [aria-live="assertive"], [aria-live="polite"]`).WithText(messageSentRx),
			browser.Text(messageSentRx)),
		MissingRecipient: browser.NewTarget("compose.missing-recipient",
			browser.By{Strategy: browser.StrategyRole, Role: "alertdialog"}.WithText(missingRecipientRx)),
		ErrorOK: browser.NewTarget("compose.error-ok",
			browser.RoleMatching("button", okRx)),
		DiscardDraft: browser.NewTarget("compose.discard",
			browser.RoleMatching("button", discardDraftRx)).In(dialog),
		SaveAndClose: browser.NewTarget("compose.save-close",
			browser.CSS(`img[alt="Save & close"]`)).In(dialog),

		InboxLink: browser.NewTarget("nav.inbox", browser.RoleMatching("link", inboxLinkRx)),
		SentLink:  browser.NewTarget("nav.sent", browser.RoleMatching("link", sentLinkRx)),
		FirstConversation: browser.NewTarget("inbox.first-row",
			browser.CSS("tr.zA")),
		ThreadToolbar: browser.NewTarget("thread.toolbar",
			browser.CSS(`div[aria-label^="Back to Inbox"]`),
			browser.CSS(`div[aria-label="More"]`)),
		BackToInbox: browser.NewTarget("thread.back",
			browser.CSS(`div[aria-label^="Back to Inbox"]`)),

		AccountButton: browser.NewTarget("account.avatar",
			browser.RoleMatching("button", accountButtonRx),
			browser.CSS(`a[aria-label^="Google Account"], img[alt^="Google Account"]`)),
		SignOut: browser.NewTarget("account.sign-out",
			browser.RoleMatching("button", signOutRx),
			browser.RoleMatching("link", signOutRx)),
	}
}

// SentRow locates the sent-items row whose subject cell contains subject.
func SentRow(subject string) browser.Target {
	rx := regexp.MustCompile(regexp.QuoteMeta(subject))
	return browser.NewTarget("sent.row:"+subject,
		browser.CSS("tr.zA").Containing(browser.CSS("span.bog").WithText(rx)))
}

// SentSubject locates the subject text anywhere in the main region.
func SentSubject(subject string) browser.Target {
	rx := regexp.MustCompile(regexp.QuoteMeta(subject))
	main := browser.NewTarget("main", browser.By{Strategy: browser.StrategyRole, Role: "main"})
	return browser.NewTarget("sent.subject:"+subject, browser.Text(rx)).In(main)
}

// RowRecipient locates recipient text inside the sent row for subject.
func RowRecipient(subject, recipient string) browser.Target {
	rx := regexp.MustCompile(regexp.QuoteMeta(recipient))
	return browser.NewTarget("sent.recipient:"+subject, browser.Text(rx)).In(SentRow(subject))
}
