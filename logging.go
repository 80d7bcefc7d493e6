package ept

import "github.com/sirupsen/logrus"

// logger receives dispatcher, switcher and walker tracing. Defaults to the
// standard logrus logger.
var logger logrus.FieldLogger = logrus.StandardLogger()

// SetLogger redirects the package's diagnostic output. Passing nil restores
// the standard logger.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	logger = l
}
