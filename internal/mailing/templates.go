package mailing

// messageTemplate is one localized message. Subject and Body are Liquid
// sources rendered with first_name and frontend_url. Bodies are HTML, so
// first_name must always pass through the escape filter.
type messageTemplate struct {
	Subject string
	Body    string
}

const (
	// DefaultTemplate is used whenever a requested template is unknown.
	DefaultTemplate = "reminder"
	// DefaultLocale is used whenever a requested locale is unknown.
	DefaultLocale = "en"
)

// layout wraps every message body. It expects content and unsubscribe_label
// in addition to the message variables.
const layout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;font-family:Arial,sans-serif;background-color:#0A0A0B;">
<table width="100%" cellpadding="0" cellspacing="0" style="max-width:600px;margin:0 auto;background:#111113;border-radius:16px;overflow:hidden;">
  <tr><td style="padding:40px 30px;text-align:center;">
    <h1 style="color:#FF3B30;font-size:28px;margin:0;">Postify AI</h1>
  </td></tr>
  <tr><td style="padding:0 30px 30px;">
{{ content }}
  </td></tr>
  <tr><td style="padding:20px 30px;border-top:1px solid #1F2937;text-align:center;">
    <a href="{{ frontend_url }}/unsubscribe" style="color:#6B7280;font-size:12px;text-decoration:underline;">{{ unsubscribe_label }}</a>
  </td></tr>
</table>
</body>
</html>
`

var unsubscribeLabels = map[string]string{
	"en": "Unsubscribe",
	"ru": "Отписаться",
}

const ctaStyle = `display:inline-block;background:#FF3B30;color:#ffffff;padding:16px 32px;border-radius:12px;text-decoration:none;font-weight:bold;font-size:16px;margin-top:20px;`

// catalog maps template name -> locale -> message.
var catalog = map[string]map[string]messageTemplate{
	"reminder": {
		"en": {
			Subject: "You left something behind 👀",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Hey{% if first_name != "" %} {{ first_name | escape }}{% endif %}!</h2>
<p style="color:#9CA3AF;font-size:16px;line-height:1.6;">We noticed you were checking out our Pro features. Here's what you're missing:</p>
<ul style="color:#ffffff;">
  <li>200 AI generations per month</li>
  <li>Brand AI for consistent content</li>
  <li>Advanced analytics &amp; exports</li>
</ul>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=reminder" style="` + ctaStyle + `">Unlock Pro Features →</a>`,
		},
		"ru": {
			Subject: "Вы кое-что забыли 👀",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Привет{% if first_name != "" %} {{ first_name | escape }}{% endif %}!</h2>
<p style="color:#9CA3AF;font-size:16px;line-height:1.6;">Мы заметили, что вы смотрели Pro функции. Вот что вы упускаете:</p>
<ul style="color:#ffffff;">
  <li>200 AI генераций в месяц</li>
  <li>Brand AI для единого стиля</li>
  <li>Аналитика и экспорт данных</li>
</ul>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=reminder" style="` + ctaStyle + `">Разблокировать Pro →</a>`,
		},
	},
	"social_proof": {
		"en": {
			Subject: "See how creators save 10+ hours/week with Pro",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Join 10,000+ creators using Pro</h2>
<blockquote style="background:#1F2937;border-radius:12px;padding:20px;color:#ffffff;font-style:italic;">
  "Postify Pro cut my content creation time by 80%. I create a week's worth of posts in 30 minutes."
  <br><span style="color:#9CA3AF;font-size:14px;">Sarah M., Social Media Manager</span>
</blockquote>
<h3 style="color:#ffffff;font-size:18px;">What Pro creators unlock:</h3>
<ul style="color:#9CA3AF;">
  <li><b style="color:#FF3B30;">Brand AI</b>: your brand voice, automated</li>
  <li><b style="color:#FF3B30;">Marketing Sets</b>: all platforms, one click</li>
  <li><b style="color:#FF3B30;">Analytics</b>: track what converts</li>
</ul>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=social_proof" style="` + ctaStyle + `">Upgrade to Pro →</a>`,
		},
		"ru": {
			Subject: "Как создатели экономят 10+ часов в неделю с Pro",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Присоединяйтесь к 10,000+ Pro создателям</h2>
<blockquote style="background:#1F2937;border-radius:12px;padding:20px;color:#ffffff;font-style:italic;">
  "Postify Pro сократил время создания контента на 80%. Контент на неделю за 30 минут."
  <br><span style="color:#9CA3AF;font-size:14px;">Анна М., SMM-менеджер</span>
</blockquote>
<h3 style="color:#ffffff;font-size:18px;">Что получают Pro пользователи:</h3>
<ul style="color:#9CA3AF;">
  <li><b style="color:#FF3B30;">Brand AI</b>: ваш голос бренда, автоматически</li>
  <li><b style="color:#FF3B30;">Маркетинг-наборы</b>: все платформы, один клик</li>
  <li><b style="color:#FF3B30;">Аналитика</b>: отслеживайте конверсии</li>
</ul>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=social_proof" style="` + ctaStyle + `">Перейти на Pro →</a>`,
		},
	},
	"soft_urgency": {
		"en": {
			Subject: "Your 50 bonus credits are waiting ✨",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Don't let Free limits hold you back</h2>
<p style="color:#9CA3AF;font-size:16px;line-height:1.6;">With only 3 generations per month, you're barely scratching the surface of what AI can do for your content.</p>
<p style="background:#FF3B30;border-radius:12px;padding:25px;color:#ffffff;font-size:20px;font-weight:bold;text-align:center;">🎁 50 Bonus Credits<br><span style="font-size:14px;font-weight:normal;">Waiting for you when you upgrade</span></p>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=urgency&bonus=50" style="` + ctaStyle + `">Claim Your Bonus →</a>
<p style="color:#6B7280;font-size:12px;margin-top:20px;">No pressure. But your content is waiting.</p>`,
		},
		"ru": {
			Subject: "50 бонусных кредитов ждут вас ✨",
			Body: `<h2 style="color:#ffffff;font-size:24px;margin:0 0 20px;">Не позволяйте лимитам Free тормозить вас</h2>
<p style="color:#9CA3AF;font-size:16px;line-height:1.6;">С 3 генерациями в месяц вы едва касаетесь возможностей AI для вашего контента.</p>
<p style="background:#FF3B30;border-radius:12px;padding:25px;color:#ffffff;font-size:20px;font-weight:bold;text-align:center;">🎁 50 бонусных кредитов<br><span style="font-size:14px;font-weight:normal;">Ждут вас при переходе на Pro</span></p>
<a href="{{ frontend_url }}/pricing?utm_source=drip&utm_campaign=urgency&bonus=50" style="` + ctaStyle + `">Получить бонус →</a>
<p style="color:#6B7280;font-size:12px;margin-top:20px;">Без давления. Но ваш контент ждёт.</p>`,
		},
	},
}

// lookup resolves a template with the reminder/en fallbacks applied.
// It returns the names actually used.
func lookup(name, locale string) (messageTemplate, string, string) {
	byLocale, ok := catalog[name]
	if !ok {
		name = DefaultTemplate
		byLocale = catalog[name]
	}
	msg, ok := byLocale[locale]
	if !ok {
		locale = DefaultLocale
		msg = byLocale[locale]
	}
	return msg, name, locale
}

// Templates returns the names of every known template.
func Templates() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	return names
}

// HasTemplate reports whether name is a known template (without fallback).
func HasTemplate(name string) bool {
	_, ok := catalog[name]
	return ok
}
