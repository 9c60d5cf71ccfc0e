package logger

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"
)

var echoLevels = map[logrus.Level]log.Lvl{
	logrus.TraceLevel: log.DEBUG,
	logrus.DebugLevel: log.DEBUG,
	logrus.InfoLevel:  log.INFO,
	logrus.WarnLevel:  log.WARN,
	logrus.ErrorLevel: log.ERROR,
	logrus.FatalLevel: log.ERROR,
	logrus.PanicLevel: log.ERROR,
}

// New returns an echo logger that writes through the standard logrus logger.
func New() echo.Logger {
	return &echoLogger{entry: logrus.WithField("component", "http")}
}

type echoLogger struct {
	entry *logrus.Entry
}

func marshalJSON(j log.JSON) string {
	b, err := json.Marshal(j)
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(j))
	}
	return string(b)
}

// The level is owned by Configure, so SetLevel is a no-op.
func (l *echoLogger) SetLevel(log.Lvl) {}
func (l *echoLogger) Level() log.Lvl {
	if lvl, ok := echoLevels[l.entry.Logger.GetLevel()]; ok {
		return lvl
	}
	return log.INFO
}

func (l *echoLogger) SetOutput(w io.Writer) { l.entry.Logger.SetOutput(w) }
func (l *echoLogger) Output() io.Writer     { return l.entry.Logger.Out }
func (l *echoLogger) SetPrefix(string)      {}
func (l *echoLogger) Prefix() string        { return "" }
func (l *echoLogger) SetHeader(string)      {}

func (l *echoLogger) Print(i ...interface{})                    { l.entry.Print(i...) }
func (l *echoLogger) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }
func (l *echoLogger) Printj(j log.JSON)                         { l.entry.Println(marshalJSON(j)) }
func (l *echoLogger) Debug(i ...interface{})                    { l.entry.Debug(i...) }
func (l *echoLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *echoLogger) Debugj(j log.JSON)                         { l.entry.Debugln(marshalJSON(j)) }
func (l *echoLogger) Info(i ...interface{})                     { l.entry.Info(i...) }
func (l *echoLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *echoLogger) Infoj(j log.JSON)                          { l.entry.Infoln(marshalJSON(j)) }
func (l *echoLogger) Warn(i ...interface{})                     { l.entry.Warn(i...) }
func (l *echoLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *echoLogger) Warnj(j log.JSON)                          { l.entry.Warnln(marshalJSON(j)) }
func (l *echoLogger) Error(i ...interface{})                    { l.entry.Error(i...) }
func (l *echoLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *echoLogger) Errorj(j log.JSON)                         { l.entry.Errorln(marshalJSON(j)) }
func (l *echoLogger) Fatal(i ...interface{})                    { l.entry.Fatal(i...) }
func (l *echoLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
func (l *echoLogger) Fatalj(j log.JSON)                         { l.entry.Fatalln(marshalJSON(j)) }
func (l *echoLogger) Panic(i ...interface{})                    { l.entry.Panic(i...) }
func (l *echoLogger) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }
func (l *echoLogger) Panicj(j log.JSON)                         { l.entry.Panicln(marshalJSON(j)) }
