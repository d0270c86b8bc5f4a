package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PrefixedFormatter writes one line per entry with the time, the level, an
// optional prefix, the message, and then the sorted fields.
type PrefixedFormatter struct {
	Prefix     string
	TimeFormat string
	// MaxMessageLength caps the padding added after messages so that
	// fields line up.
	MaxMessageLength int
	NoColor          bool

	once   sync.Once
	mu     sync.Mutex
	msgPad int
}

func NewPrefixedFormatter(prefix, timeFormat string) *PrefixedFormatter {
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	return &PrefixedFormatter{
		Prefix:           prefix,
		TimeFormat:       timeFormat,
		MaxMessageLength: 64,
	}
}

func levelColor(l logrus.Level) (color.Attribute, error) {
	switch l {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return color.FgRed, nil
	case logrus.WarnLevel:
		return color.FgYellow, nil
	case logrus.InfoLevel:
		return color.FgCyan, nil
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.FgWhite, nil
	}
	return 0, errors.Errorf("unknown logging level %d", l)
}

// Format implements logrus.Formatter.
func (pf *PrefixedFormatter) Format(e *logrus.Entry) ([]byte, error) {
	col, err := levelColor(e.Level)
	if err != nil {
		return nil, err
	}
	pf.once.Do(func() {
		if e.Logger != nil && !IsTerm(e.Logger.Out) {
			pf.NoColor = true
		}
		if pf.TimeFormat == "" {
			pf.TimeFormat = time.RFC3339
		}
	})

	var (
		b     bytes.Buffer
		level = strings.ToUpper(e.Level.String())
		stamp = e.Time.Format(pf.TimeFormat)
	)
	if pf.NoColor {
		fmt.Fprintf(&b, "[%s] %-7s ", stamp, level)
	} else {
		fmt.Fprintf(&b, "\x1b[90m[%s]\x1b[0m \x1b[%dm%-7s\x1b[0m ", stamp, col, level)
	}
	if pf.Prefix != "" {
		b.WriteString(pf.Prefix)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)

	if len(e.Data) > 0 {
		b.WriteString(strings.Repeat(" ", pf.padding(len(e.Message))))
		keys := make([]string, 0, len(e.Data))
		for k := range e.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if pf.NoColor {
				fmt.Fprintf(&b, " %s=", k)
			} else {
				fmt.Fprintf(&b, " \x1b[%dm%s\x1b[0m=", col, k)
			}
			writeValue(&b, e.Data[k])
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// padding returns the number of spaces needed after a message of length n
// so that it lines up with the longest message seen so far.
func (pf *PrefixedFormatter) padding(n int) int {
	limit := pf.MaxMessageLength
	if limit <= 0 {
		return 0
	}
	if n > limit {
		n = limit
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if n > pf.msgPad {
		pf.msgPad = n
	}
	return pf.msgPad - n
}

func writeValue(b *bytes.Buffer, val interface{}) {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case error:
		s = v.Error()
	default:
		s = fmt.Sprint(v)
	}
	if needsQuotes(s) {
		fmt.Fprintf(b, "%q", s)
	} else {
		b.WriteString(s)
	}
}

// SilentFormatter is a logrus formatter that does nothing
type SilentFormatter struct{}

// Format does nothing
func (sf *SilentFormatter) Format(*logrus.Entry) ([]byte, error) {
	return nil, nil
}

func needsQuotes(s string) bool {
	if len(s) == 0 {
		return true
	}
	for _, c := range s {
		if c < '!' || c > '~' {
			return true
		}
	}
	return false
}
