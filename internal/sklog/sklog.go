// Package sklog offers module-level leveled logging, mirroring the
// calling convention of the teacher's own sklog package
// (Infof/Warningf/Errorf/Fatalf) so call sites read the same regardless
// of which process they live in. Like the teacher's go/sklog, severities
// that have no glog equivalent collapse onto the nearest one
// (logToGlog's DEBUG/INFO/NOTICE -> Info, CRITICAL -> Error, ALERT ->
// Fatal mapping), backed here by github.com/golang/glog directly rather
// than the Cloud Logging layer go/sklog sits in front of it.
package sklog

import (
	"fmt"

	"github.com/golang/glog"
)

const (
	DEBUG    = "DEBUG"
	INFO     = "INFO"
	NOTICE   = "NOTICE"
	WARNING  = "WARNING"
	ERROR    = "ERROR"
	CRITICAL = "CRITICAL"
	ALERT    = "ALERT"
)

func logToGlog(severity, msg string) {
	switch severity {
	case DEBUG, INFO, NOTICE:
		glog.InfoDepth(2, msg)
	case WARNING:
		glog.WarningDepth(2, msg)
	case ERROR, CRITICAL:
		glog.ErrorDepth(2, msg)
	case ALERT:
		glog.FatalDepth(2, msg)
	default:
		glog.ErrorDepth(2, msg)
	}
}

func Debugf(format string, args ...interface{})    { logToGlog(DEBUG, fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})     { logToGlog(INFO, fmt.Sprintf(format, args...)) }
func Noticef(format string, args ...interface{})   { logToGlog(NOTICE, fmt.Sprintf(format, args...)) }
func Warningf(format string, args ...interface{})  { logToGlog(WARNING, fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{})    { logToGlog(ERROR, fmt.Sprintf(format, args...)) }
func Criticalf(format string, args ...interface{}) { logToGlog(CRITICAL, fmt.Sprintf(format, args...)) }

// Fatalf logs at ALERT severity and terminates the process via glog.Fatal,
// matching the teacher's convention that Fatalf is reserved for
// unrecoverable startup errors only.
func Fatalf(format string, args ...interface{}) {
	logToGlog(ALERT, fmt.Sprintf(format, args...))
}

func Info(args ...interface{})  { logToGlog(INFO, fmt.Sprint(args...)) }
func Error(args ...interface{}) { logToGlog(ERROR, fmt.Sprint(args...)) }
