package config

import "github.com/spf13/viper"

// Email completion notification config. Provider is "sendgrid", "mailgun"
// or empty to disable.
type Email struct {
	Provider string
	From     string
	FromName string
	SendGrid SendGridConfig
	Mailgun  MailgunConfig
}

// SendGridConfig sendgrid credentials
type SendGridConfig struct {
	Key string
}

// MailgunConfig mailgun credentials
type MailgunConfig struct {
	Key     string
	Domain  string
	APIBase string
}

// getEmailConfig returns the email configuration
func getEmailConfig(v *viper.Viper) *Email {
	return &Email{
		Provider: v.GetString("email.provider"),
		From:     v.GetString("email.from"),
		FromName: getStringOrDefault(v, "email.from_name", "Studio+233"),
		SendGrid: SendGridConfig{
			Key: v.GetString("email.sendgrid.key"),
		},
		Mailgun: MailgunConfig{
			Key:     v.GetString("email.mailgun.key"),
			Domain:  v.GetString("email.mailgun.domain"),
			APIBase: v.GetString("email.mailgun.api_base"),
		},
	}
}
