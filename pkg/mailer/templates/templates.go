package templates

import (
	"bytes"
	"embed"
	"fmt"
	"reflect"
	"strings"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData defines standard fields for email templates.
type EmailData struct {
	Name    string
	Email   string
	AppName string

	// ActionURL carries the raw recovery token; it is never persisted.
	ActionURL string
	// ActionIsPage is set when ActionURL opens a frontend page rather than
	// naming an API route that takes PATCH.
	ActionIsPage bool

	ExpiresAt     time.Time
	ExpiresAtText string
	ValidForText  string
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || rv.IsZero() {
			return fallback
		}
		return value
	}
}

var textFuncMap = texttpl.FuncMap{
	"formatTime": func(t time.Time, layout string) string { return t.Format(layout) },
	"upper":      strings.ToUpper,
	"default":    defaultFn,
}

const (
	ConfirmEmail  = "confirm_email"
	UnlockAccount = "unlock_account"
	ResetPassword = "reset_password"
)

func renderFile(filename string, data any) (string, error) {
	tpl, err := texttpl.New(filename).Funcs(textFuncMap).ParseFS(FS, filename)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", filename, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", filename, err)
	}
	return buf.String(), nil
}

// Render loads and renders subject and text templates for the given base name.
// Expects: <name>.subject.tmpl, <name>.text.tmpl
func Render(name string, data any) (subject string, text string, err error) {
	subject, err = renderFile(name+".subject.tmpl", data)
	if err != nil {
		return "", "", err
	}
	text, err = renderFile(name+".text.tmpl", data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), text, nil
}
