package monitoring

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogger(t *testing.T) {
	original := Log
	defer func() { Log = original }()

	logger, hook := test.NewNullLogger()
	SetLogger(logger)
	Log.WithField("world", "overworld").Warn("skipped region")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "overworld", hook.LastEntry().Data["world"])

	SetLogger(nil)
	Log.Warn("not recorded")
	assert.Len(t, hook.Entries, 1)
}

func TestInit(t *testing.T) {
	original := Log
	level := log.GetLevel()
	defer func() {
		Log = original
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{})
	}()

	require.NoError(t, Init(Config{Level: "debug", Format: "json"}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.Equal(t, log.StandardLogger(), Log)

	assert.Error(t, Init(Config{Level: "loud", Format: "text"}))
}
