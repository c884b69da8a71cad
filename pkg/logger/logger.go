package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface every component writes through.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type zerologLogger struct {
	zl zerolog.Logger
}

// New wraps a zerolog.Logger.
func New(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{zl: zerolog.Nop()}
}

func (l *zerologLogger) Error(msg string, args ...any) {
	write(l.zl.Error(), msg, args)
}

func (l *zerologLogger) Warn(msg string, args ...any) {
	write(l.zl.Warn(), msg, args)
}

func (l *zerologLogger) Info(msg string, args ...any) {
	write(l.zl.Info(), msg, args)
}

func (l *zerologLogger) Debug(msg string, args ...any) {
	write(l.zl.Debug(), msg, args)
}

func write(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if i+1 == len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		if err, ok := args[i+1].(error); ok {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}

const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
)

type LogBuild struct {
	writer     io.Writer
	path       string
	level      zerolog.Level
	LogChannel chan string
}

type LogData struct {
	writer     io.Writer
	LogFile    io.WriteCloser
	Logger     zerolog.Logger
	LogChannel chan string
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

// FromPath writes to a size-rotated log file.
func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) FromChannel(chn chan string) *LogBuild {
	build.LogChannel = chn
	return build
}

func (build *LogBuild) Level(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	logData.LogChannel = build.LogChannel
	if build.path != "" {
		file := &lumberjack.Logger{
			Filename:   build.path,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
		}
		logData.LogFile = file
		logData.writer = zerolog.SyncWriter(file)
	}
	if logData.LogChannel != nil {
		logData.writer = io.MultiWriter(logData.writer, channelWriter(logData.LogChannel))
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

type channelWriter chan string

func (c channelWriter) Write(p []byte) (int, error) {
	select {
	case c <- string(p):
	default:
	}
	return len(p), nil
}
