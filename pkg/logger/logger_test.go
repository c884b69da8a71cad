package logger_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/olsync/olsync/pkg/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.NewBuild().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	// Get Stats Before
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	// Get Stats After
	require.Contains(t, buff.String(), "Test")
}

func TestLogChannel(t *testing.T) {
	ch := make(chan string, 1)
	templogger, err := logger.NewBuild().FromBuffer(&bytes.Buffer{}).FromChannel(ch).Make()
	require.NoError(t, err)

	templogger.Logger.Info().Msg("via channel")
	require.Contains(t, <-ch, "via channel")
}

func TestLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "olsync.log")
	templogger, err := logger.NewBuild().FromPath(path).Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("to file")
	require.NoError(t, templogger.Close())
	require.FileExists(t, path)
}

type logLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	DocID   string `json:"doc_id"`
	Error   string `json:"error"`
}

func TestLogger(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})
	log := logger.New(zerolog.New(buffer).Level(zerolog.DebugLevel))

	testMethods := []struct {
		fn    func(msg string, args ...any)
		level string
	}{
		{fn: log.Error, level: "error"},
		{fn: log.Warn, level: "warn"},
		{fn: log.Info, level: "info"},
		{fn: log.Debug, level: "debug"},
	}

	for _, v := range testMethods {
		t.Run(v.level, func(t *testing.T) {
			defer buffer.Reset()
			v.fn("document dropped", "doc_id", "d1", "error", errors.New("boom"))

			var line logLine
			require.NoError(t, json.Unmarshal(buffer.Bytes(), &line))
			require.Equal(t, v.level, line.Level)
			require.Equal(t, "document dropped", line.Message)
			require.Equal(t, "d1", line.DocID)
			require.Equal(t, "boom", line.Error)
		})
	}
}

func TestNop(t *testing.T) {
	require.NotPanics(t, func() {
		logger.Nop().Error("ignored", "key")
	})
}
