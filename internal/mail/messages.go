package mail

import (
	"fmt"
	"time"
)

func SendLockoutAlert(notifier Notifier, siteName string, to string, until time.Time) error {
	return notifier.Send(&Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Your account has been temporarily locked", siteName),
		Body: fmt.Sprintf(
			"Your account has been locked after repeated failed sign-in attempts.\n\n"+
				"You will be able to sign in again after %s.\n\n"+
				"If this was not you, reset your password once the lock expires.\n",
			until.Format(time.RFC1123)),
	})
}

func SendPasswordChanged(notifier Notifier, siteName string, to string, at time.Time) error {
	return notifier.Send(&Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Your password was changed", siteName),
		Body: fmt.Sprintf(
			"The password for your account was changed at %s.\n\n"+
				"If you did not make this change, contact support immediately.\n",
			at.Format(time.RFC1123)),
	})
}

func SendMFAEnabled(notifier Notifier, siteName string, to string) error {
	return notifier.Send(&Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Two-factor authentication enabled", siteName),
		Body: "Two-factor authentication was enabled for your account.\n\n" +
			"Keep your backup codes somewhere safe. Each code can be used once\n" +
			"if you lose access to your authenticator app.\n",
	})
}

func SendMFADisabled(notifier Notifier, siteName string, to string) error {
	return notifier.Send(&Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Two-factor authentication disabled", siteName),
		Body: "Two-factor authentication was disabled for your account.\n\n" +
			"If you did not make this change, reset your password and re-enable\n" +
			"two-factor authentication immediately.\n",
	})
}
