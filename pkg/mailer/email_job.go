package mailer

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Text is the plain fallback; Template selects a registered template and
// Data feeds it.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // "confirm_email" or "reset_password"
	Data     map[string]any `json:"data,omitempty"`
}
