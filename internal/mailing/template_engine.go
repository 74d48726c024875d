// Package mailing renders drip messages with the Liquid template language
// and hands them to a delivery gateway (mock, SES or SparkPost).
package mailing

import (
	"fmt"
	"html"
	"sync"

	"github.com/osteele/liquid"
)

// RenderedMessage is a template rendered for one recipient.
type RenderedMessage struct {
	Template string `json:"template"`
	Locale   string `json:"locale"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// TemplateRenderer renders catalog templates with caching of parsed sources.
type TemplateRenderer struct {
	engine      *liquid.Engine
	cache       sync.Map // map[string]*liquid.Template
	frontendURL string
}

// NewTemplateRenderer creates a renderer whose links point at frontendURL.
func NewTemplateRenderer(frontendURL string) *TemplateRenderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Profile data goes through escape: {{ first_name | escape }}
	engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	return &TemplateRenderer{engine: engine, frontendURL: frontendURL}
}

// Render produces the subject and body for template in locale, addressed to
// displayName. Unknown templates fall back to "reminder" and unknown locales
// to "en"; an empty displayName renders without a name.
func (r *TemplateRenderer) Render(template, locale, displayName string) (*RenderedMessage, error) {
	msg, name, lang := lookup(template, locale)

	vars := map[string]interface{}{
		"first_name":        displayName,
		"frontend_url":      r.frontendURL,
		"unsubscribe_label": unsubscribeLabels[lang],
	}

	subject, err := r.render(name+"/"+lang+"/subject", msg.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s subject: %w", name, err)
	}
	content, err := r.render(name+"/"+lang+"/body", msg.Body, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s body: %w", name, err)
	}
	vars["content"] = content
	body, err := r.render("layout", layout, vars)
	if err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}

	return &RenderedMessage{Template: name, Locale: lang, Subject: subject, Body: body}, nil
}

func (r *TemplateRenderer) render(cacheKey, source string, vars map[string]interface{}) (string, error) {
	if cached, ok := r.cache.Load(cacheKey); ok {
		return cached.(*liquid.Template).RenderString(vars)
	}

	tpl, err := r.engine.ParseString(source)
	if err != nil {
		return "", err
	}
	r.cache.Store(cacheKey, tpl)

	return tpl.RenderString(vars)
}
