package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const loginCodeTemplate = `Your verification code is: {{.Code}}

This code expires in {{.ValidFor}}.
If you did not request this code, you can ignore this email.`

const apiKeyTemplate = `A new API key was generated for device "{{.DeviceName}}" ({{.DeviceID}}).

API key: {{.APIKey}}

Store it securely. It will not be shown again.
Use it in the X-API-Key header when the device polls for commands.`

// LoginCodeData fills the login code message.
type LoginCodeData struct {
	Code     string
	ValidFor string
}

// APIKeyData fills the API key delivery message.
type APIKeyData struct {
	DeviceName string
	DeviceID   string
	APIKey     string
}

// Templates renders the relay's outgoing messages.
type Templates struct {
	loginCode *template.Template
	apiKey    *template.Template
}

// NewTemplates parses the message templates.
func NewTemplates() (*Templates, error) {
	loginCode, err := template.New("login-code").Parse(loginCodeTemplate)
	if err != nil {
		return nil, err
	}
	apiKey, err := template.New("api-key").Parse(apiKeyTemplate)
	if err != nil {
		return nil, err
	}
	return &Templates{loginCode: loginCode, apiKey: apiKey}, nil
}

// LoginCode renders the login code message for email.
func (t *Templates) LoginCode(email string, data LoginCodeData) (Message, error) {
	body, err := render(t.loginCode, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: "Your login code", Body: body}, nil
}

// APIKey renders the API key delivery message for email.
func (t *Templates) APIKey(email string, data APIKeyData) (Message, error) {
	body, err := render(t.apiKey, data)
	if err != nil {
		return Message{}, err
	}
	return Message{To: email, Subject: "Your device API key", Body: body}, nil
}

func render(tpl *template.Template, data any) (string, error) {
	if tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
