package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	"path/filepath"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates   tmplCache
	tmplInit    sync.Once
	errNoTmpl   = errors.New("template not found")
	errTmplsNil = errors.New("email templates not parsed")
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: tmplCacheEntry}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string

		conf *Config
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// ParseEmailTemplates loads all templates under assets/templates/email.
// It is safe to call multiple times; parsing only happens once.
func ParseEmailTemplates(conf *Config, logger Logger) {
	tmplInit.Do(func() { parseTemplates(conf, logger) })
}

// RenderTemplate renders the named email template (both the .txt and the
// .gohtml variant when present) with the given data.
func RenderTemplate(conf *Config, name string, data interface{}) (textContent, htmlContent string, err error) {
	if templates == nil {
		return "", "", errTmplsNil
	}
	entry, ok := templates[name]
	if !ok {
		return "", "", errors.Wrap(errNoTmpl, name)
	}

	ctxData := ContextData{FrontendBaseURL: conf.FrontendBaseURL, Data: data}

	if tmpl, ok := entry[".txt"].(*texttmpl.Template); ok {
		var buff bytes.Buffer
		if err = tmpl.Execute(&buff, ctxData); err != nil {
			return "", "", errors.Wrapf(err, "rendering %s.txt", name)
		}
		textContent = buff.String()
	}
	if tmpl, ok := entry[".gohtml"].(*htmltmpl.Template); ok {
		var buff bytes.Buffer
		if err = tmpl.Execute(&buff, ctxData); err != nil {
			return "", "", errors.Wrapf(err, "rendering %s.gohtml", name)
		}
		htmlContent = buff.String()
	}
	return textContent, htmlContent, nil
}

func (m *EmailMessage) Render(conf *Config) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}
	text, html, err := RenderTemplate(conf, m.TemplateName, m.TemplateData)
	if err != nil {
		return err
	}
	m.TextContent = text
	m.HTMLContent = html
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func parseTemplates(conf *Config, logger Logger) {
	templates = make(tmplCache)

	rp := filepath.Join(conf.WorkDir, "assets", "templates", "email")
	fps, err := filepath.Glob(filepath.Join(rp, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("parsing email templates: %v", err), err)
		return
	}

	for _, fp := range fps {
		fname := filepath.Base(fp)
		ext := filepath.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := fname[:strings.LastIndex(fname, ".")]
		entry, ok := templates[name]
		if !ok {
			templates[name] = make(tmplCacheEntry)
			entry = templates[name]
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFiles(filepath.Join(rp, "_base.txt"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("parsing %s: %v", fname, err), err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFiles(filepath.Join(rp, "_base.gohtml"), fp)
			if err != nil {
				logger.Error(fmt.Sprintf("parsing %s: %v", fname, err), err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry[ext] = tmpl
		}
	}
}
