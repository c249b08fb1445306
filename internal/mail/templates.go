package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/action.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/action.txt.tmpl"))
)

const (
	DefaultProductName = "ProjectCamp"
	defaultOutro       = "Need help, or have questions? Just reply to this email, we'd love to help."
)

// Content is a single call-to-action email.
type Content struct {
	Subject      string
	ProductName  string
	ProductURL   string
	Username     string
	Intro        string
	Instructions string
	ButtonText   string
	ActionURL    string
	Outro        string
}

func VerificationContent(username, verificationURL string) Content {
	return Content{
		Subject:      "Please verify your email",
		Username:     username,
		Intro:        "Welcome to ProjectCamp! It is a RESTful API service designed to support collaborative project management.",
		Instructions: "We are excited to have you on-board and there's just one step to verify if it's actually your e-mail address:",
		ButtonText:   "Verify Account",
		ActionURL:    verificationURL,
		Outro:        defaultOutro,
	}
}

func PasswordResetContent(username, resetURL string) Content {
	return Content{
		Subject:      "Password reset request",
		Username:     username,
		Intro:        "We received a request to reset your password.",
		Instructions: "In-order to reset your password please click on the button provided below",
		ButtonText:   "Reset Password",
		ActionURL:    resetURL,
		Outro:        defaultOutro,
	}
}

// Compose renders c into a message addressed to to.
func Compose(to string, c Content) (Message, error) {
	if c.ProductName == "" {
		c.ProductName = DefaultProductName
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, c); err != nil {
		return Message{}, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, c); err != nil {
		return Message{}, fmt.Errorf("failed to render text body: %w", err)
	}

	return Message{
		To:      to,
		Subject: c.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
