package core

// Logger is the app-wide logging service.
// Extra args may carry errors, maps or the logged-in user.User for
// error-reporting backends.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
