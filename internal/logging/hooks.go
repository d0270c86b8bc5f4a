package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"
)

// Hook writes entries at the given levels to Writer. When Formatter is nil
// the logger's own formatter is used.
type Hook struct {
	Writer    io.Writer
	LogLevels []logrus.Level
	Formatter logrus.Formatter
}

// NewLogFileHook sends entries of every level to w, usually a
// *lumberjack.Logger.
func NewLogFileHook(w io.Writer, formatter logrus.Formatter) *Hook {
	return &Hook{
		Writer:    w,
		LogLevels: logrus.AllLevels,
		Formatter: formatter,
	}
}

func (h *Hook) Levels() []logrus.Level { return h.LogLevels }

func (h *Hook) Fire(e *logrus.Entry) error {
	var (
		b   []byte
		err error
	)
	if h.Formatter != nil {
		b, err = h.Formatter.Format(e)
	} else {
		b, err = e.Bytes()
	}
	if err != nil {
		return err
	}
	_, err = h.Writer.Write(b)
	return err
}

// IsTerm returns true if w is a terminal.
func IsTerm(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return terminal.IsTerminal(int(f.Fd()))
}
