package a

type fakeLogger struct{}

func (l fakeLogger) Infoln(args ...interface{})                {}
func (l fakeLogger) Debugf(format string, args ...interface{}) {}

func leaky() {
	log := fakeLogger{}
	password := "secret"
	passwordHash := "$2a$10$abc"
	username := "alice"

	log.Infoln("user signed in", username)
	log.Infoln("credentials", password)         // want "password-related value passed to a logging call"
	log.Debugf("stored hash: %s", passwordHash) // want "password-related value passed to a logging call"
}
