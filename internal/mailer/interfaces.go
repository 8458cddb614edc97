package mailer

// Service is the Notifier: the channel used to deliver verification and
// password-reset messages.
type Service interface {
	SendVerificationEmail(toEmail, firstName, verifyURL, token string) error
	SendPasswordResetEmail(toEmail, firstName, resetURL, token string) error
}
