package mailer

import (
	"fmt"

	"github.com/h1bconnect/account-service/pkg/logger"
)

// DevMailer prints emails to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendVerificationEmail(toEmail, firstName, verifyURL, token string) error {
	logger.Info("[DEV MAIL] Verification Email",
		"to", toEmail,
		"name", firstName,
		"verify_url", verifyURL,
		"token", token,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"EMAIL VERIFICATION (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Subject: Verify Your H1BConnect Account\n"+
		"\n"+
		"Hi %s,\n"+
		"\n"+
		"Welcome to H1BConnect! Please verify your email address:\n"+
		"%s\n"+
		"\n"+
		"This link will expire in 24 hours.\n"+
		"=================================================================\n\n",
		toEmail, firstName, verifyURL)

	return nil
}

func (d *DevMailer) SendPasswordResetEmail(toEmail, firstName, resetURL, token string) error {
	logger.Info("[DEV MAIL] Password Reset Email",
		"to", toEmail,
		"name", firstName,
		"reset_url", resetURL,
		"token", token,
	)

	fmt.Printf("\n"+
		"=================================================================\n"+
		"PASSWORD RESET (DEV MODE)\n"+
		"=================================================================\n"+
		"To: %s\n"+
		"Subject: Reset Your H1BConnect Password\n"+
		"\n"+
		"Hi %s,\n"+
		"\n"+
		"You requested to reset your password. Use the link below:\n"+
		"%s\n"+
		"\n"+
		"This link will expire in 1 hour.\n"+
		"=================================================================\n\n",
		toEmail, firstName, resetURL)

	return nil
}
