package logsvc

import (
	"log"

	"github.com/telecom-etude/erp/core"
)

// StdLogger logs to the standard library logger only. Used by the admin
// CLI and in tests where error reporting would be noise.
type StdLogger struct {
	std *log.Logger
}

var _ core.Logger = (*StdLogger)(nil)

func NewStdLogger(std *log.Logger) *StdLogger {
	return &StdLogger{std: std}
}

func (l StdLogger) Enable(bool) {}

func (l StdLogger) log(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		l.std.Printf("%+v\n", arg)
	}
}

func (l StdLogger) Debug(msg string, args ...interface{}) { l.log(msg, args) }
func (l StdLogger) Info(msg string, args ...interface{})  { l.log(msg, args) }
func (l StdLogger) Warn(msg string, args ...interface{})  { l.log(msg, args) }
func (l StdLogger) Error(msg string, args ...interface{}) { l.log(msg, args) }
func (l StdLogger) Fatal(msg string, args ...interface{}) {
	l.log(msg, args)
	l.std.Fatal(msg)
}
