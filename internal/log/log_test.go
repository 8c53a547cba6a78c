package log

import (
	"bytes"
	"errors"
	"regexp"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := &log.Logger{Handler: NewLineHandler(&buf), Level: log.DebugLevel}

	logger.WithField("page", 2).WithField("op", "ListUsers").Debug("fetched")
	logger.WithError(errors.New("boom")).Warn("retrying")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} D fetched op=ListUsers page=2$`), string(lines[0]))
	assert.Regexp(t, regexp.MustCompile(` W retrying error=boom$`), string(lines[1]))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{in: "debug", want: log.DebugLevel},
		{in: " TRACE ", want: log.DebugLevel},
		{in: "warn", want: log.WarnLevel},
		{in: "error", want: log.ErrorLevel},
		{in: "fatal", want: log.FatalLevel},
		{in: "info", want: log.InfoLevel},
		{in: "", want: log.InfoLevel},
		{in: "loud", want: log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}
