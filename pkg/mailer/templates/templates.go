package templates

import (
	"bytes"
	"fmt"
	"html/template"
)

// Registered email templates keyed by job template name.
// Each entry renders subject, plain-text body and HTML body from the
// same data map.
type def struct {
	subject string
	text    string
	html    string
}

var registry = map[string]def{
	"confirm_email": {
		subject: "Confirm your email",
		text:    "Hi {{.Email}},\n\nConfirm your email address by opening this link:\n{{.Link}}\n\nThe link expires in 24 hours. If you did not sign up, ignore this message.",
		html: `<p>Hi {{.Email}},</p>
<p>Confirm your email address by clicking the link below:</p>
<p><a href="{{.Link}}">Confirm email</a></p>
<p>The link expires in 24 hours. If you did not sign up, ignore this message.</p>`,
	},
	"reset_password": {
		subject: "Reset your password",
		text:    "Hi {{.Email}},\n\nReset your password by opening this link:\n{{.Link}}\n\nThe link expires in 1 hour. If you did not request a reset, ignore this message.",
		html: `<p>Hi {{.Email}},</p>
<p>Reset your password by clicking the link below:</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>The link expires in 1 hour. If you did not request a reset, ignore this message.</p>`,
	},
}

// Render renders the named template with data, returning subject, text and HTML.
func Render(name string, data map[string]any) (subject, text, html string, err error) {
	d, ok := registry[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown email template %q", name)
	}
	text, err = render(name+"_text", d.text, data)
	if err != nil {
		return "", "", "", err
	}
	html, err = render(name+"_html", d.html, data)
	if err != nil {
		return "", "", "", err
	}
	return d.subject, text, html, nil
}

func render(name, tpl string, data map[string]any) (string, error) {
	t, err := template.New(name).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
