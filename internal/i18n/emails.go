package i18n

import (
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}

type emailTemplate struct {
	Subject string
	Text    string
	HTML    string
}

type catalog struct {
	Verification  emailTemplate
	PasswordReset emailTemplate
	OAuthNotice   emailTemplate
	SignIn        emailTemplate

	UnknownLocation string
	UnknownDevice   string
}

var catalogs = map[string]catalog{
	"en": {
		Verification: emailTemplate{
			Subject: "Verify your email",
			Text:    "Your verification code is {{.Code}}. It is valid for {{.Minutes}} minutes.",
			HTML: "<p>Use the code below to verify your email address.</p>" +
				"<p><strong>{{.Code}}</strong></p>" +
				"<p>The code expires in {{.Minutes}} minutes. If you did not request this, you can ignore this email.</p>",
		},
		PasswordReset: emailTemplate{
			Subject: "Reset your password",
			Text:    "Reset your password: {{.Link}}\nThe link expires in {{.Hours}} hour(s).\nIf you did not request this, ignore this email.",
			HTML: "<p>Click the link to reset your password.</p>" +
				"<p><a href=\"{{.Link}}\">Reset password</a></p>" +
				"<p>The link expires in {{.Hours}} hour(s). If you did not request this, ignore this email.</p>",
		},
		OAuthNotice: emailTemplate{
			Subject: "Account uses external sign-in",
			Text:    "This account signs in with {{.Providers}}. Please use that method to access your account.",
			HTML:    "<p>This account signs in with {{.Providers}}.</p><p>Please use that method to access your account.</p>",
		},
		SignIn: emailTemplate{
			Subject: "New sign-in to your account",
			Text: "Hi {{.Name}},\n\nA new sign-in occurred on {{.Time}}.\n\nIP: {{.IP}}\nDevice: {{.Device}}\n\n" +
				"If this wasn't you, reset your password and revoke other sessions.",
			HTML: "<p>Hi {{.Name}},</p><p>A new sign-in occurred on <strong>{{.Time}}</strong>.</p>" +
				"<ul><li><strong>IP:</strong> {{.IP}}</li><li><strong>Device:</strong> {{.Device}}</li></ul>" +
				"<p>If this wasn't you, reset your password and revoke other sessions.</p>",
		},
		UnknownLocation: "Unknown location",
		UnknownDevice:   "Unknown device",
	},
	"de": {
		Verification: emailTemplate{
			Subject: "E-Mail verifizieren",
			Text:    "Ihr Verifizierungscode ist {{.Code}}. Er ist {{.Minutes}} Minuten gültig.",
			HTML: "<p>Verwenden Sie den untenstehenden Code, um Ihre E-Mail zu verifizieren.</p>" +
				"<p><strong>{{.Code}}</strong></p>" +
				"<p>Der Code ist {{.Minutes}} Minuten gültig. Wenn Sie dies nicht angefordert haben, können Sie diese E-Mail ignorieren.</p>",
		},
		PasswordReset: emailTemplate{
			Subject: "Passwort zurücksetzen",
			Text:    "Setzen Sie Ihr Passwort zurück: {{.Link}}\nDer Link ist {{.Hours}} Stunde(n) gültig.\nWenn Sie dies nicht angefordert haben, ignorieren Sie diese E-Mail.",
			HTML: "<p>Klicken Sie auf den Link, um Ihr Passwort zurückzusetzen.</p>" +
				"<p><a href=\"{{.Link}}\">Passwort zurücksetzen</a></p>" +
				"<p>Der Link ist {{.Hours}} Stunde(n) gültig. Wenn Sie dies nicht angefordert haben, ignorieren Sie diese E-Mail.</p>",
		},
		OAuthNotice: emailTemplate{
			Subject: "Konto nutzt externe Anmeldung",
			Text:    "Dieses Konto meldet sich über {{.Providers}} an. Bitte verwenden Sie diese Methode.",
			HTML:    "<p>Dieses Konto meldet sich über {{.Providers}} an.</p><p>Bitte verwenden Sie diese Methode.</p>",
		},
		SignIn: emailTemplate{
			Subject: "Neue Anmeldung in Ihrem Konto",
			Text: "Hallo {{.Name}},\n\nEine neue Anmeldung erfolgte am {{.Time}}.\n\nIP: {{.IP}}\nGerät: {{.Device}}\n\n" +
				"Wenn Sie das nicht waren, setzen Sie Ihr Passwort zurück und beenden Sie andere Sitzungen.",
			HTML: "<p>Hallo {{.Name}},</p><p>Eine neue Anmeldung erfolgte am <strong>{{.Time}}</strong>.</p>" +
				"<ul><li><strong>IP:</strong> {{.IP}}</li><li><strong>Gerät:</strong> {{.Device}}</li></ul>" +
				"<p>Wenn Sie das nicht waren, setzen Sie Ihr Passwort zurück und beenden Sie andere Sitzungen.</p>",
		},
		UnknownLocation: "Unbekannter Ort",
		UnknownDevice:   "Unbekanntes Gerät",
	},
}

func catalogFor(locale string) catalog {
	if c, ok := catalogs[NormalizeLocale(locale)]; ok {
		return c
	}
	return catalogs[DefaultLocale]
}

// render executes the text part with text/template and the HTML part with
// html/template so user-supplied values are escaped in the HTML body.
func (t emailTemplate) render(data any) EmailContent {
	return EmailContent{
		Subject: t.Subject,
		Text:    execText(t.Text, data),
		HTML:    execHTML(t.HTML, data),
	}
}

func execText(src string, data any) string {
	tmpl, err := texttemplate.New("text").Parse(src)
	if err != nil {
		return src
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return src
	}
	return b.String()
}

func execHTML(src string, data any) string {
	tmpl, err := htmltemplate.New("html").Parse(src)
	if err != nil {
		return src
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return src
	}
	return b.String()
}

func VerificationEmail(locale, code string, minutes int) EmailContent {
	return catalogFor(locale).Verification.render(struct {
		Code    string
		Minutes int
	}{code, minutes})
}

func PasswordResetEmail(locale, link string, hours int) EmailContent {
	return catalogFor(locale).PasswordReset.render(struct {
		Link  string
		Hours int
	}{link, hours})
}

func OAuthNoticeEmail(locale string, providers []string) EmailContent {
	return catalogFor(locale).OAuthNotice.render(struct {
		Providers string
	}{strings.Join(providers, ", ")})
}

func SignInAlertEmail(locale, name, loginTime, ip, device string) EmailContent {
	c := catalogFor(locale)
	if strings.TrimSpace(device) == "" {
		device = c.UnknownDevice
	}
	if strings.TrimSpace(ip) == "" {
		ip = c.UnknownLocation
	}
	return c.SignIn.render(struct {
		Name, Time, IP, Device string
	}{name, loginTime, ip, device})
}
