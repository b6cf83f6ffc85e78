package logger

import (
	"io"
	"log"
	"os"
)

var DebugMode bool

// Init configures the standard logger from the environment. Logs are discarded
// unless DEBUG=true or an output is set explicitly with SetOutput.
func Init() {
	if os.Getenv("DEBUG") == "true" {
		DebugMode = true
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}
}

// SetOutput sets the output destination for the standard logger
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func Debug(format string, v ...interface{}) {
	if DebugMode {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Info(format string, v ...interface{}) {
	log.Printf("[INFO] "+format, v...)
}

func Warn(format string, v ...interface{}) {
	log.Printf("[WARN] "+format, v...)
}

func Error(format string, v ...interface{}) {
	log.Printf("[ERROR] "+format, v...)
}

// Run is a logger bound to a single orchestration run. Every line is prefixed
// with the run ID so interleaved runs can be told apart.
type Run struct {
	ID string
}

func ForRun(id string) Run {
	return Run{ID: id}
}

func (r Run) Debug(format string, v ...interface{}) {
	Debug("run=%s "+format, append([]interface{}{r.ID}, v...)...)
}

func (r Run) Info(format string, v ...interface{}) {
	Info("run=%s "+format, append([]interface{}{r.ID}, v...)...)
}

func (r Run) Warn(format string, v ...interface{}) {
	Warn("run=%s "+format, append([]interface{}{r.ID}, v...)...)
}

func (r Run) Error(format string, v ...interface{}) {
	Error("run=%s "+format, append([]interface{}{r.ID}, v...)...)
}
