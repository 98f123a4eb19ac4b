package common

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestWriteCrashFile(t *testing.T) {
	InstallCrashHandler(t.TempDir())

	path := WriteCrashFile("boom", GetStackTrace())
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(data)
	assert.True(t, strings.HasPrefix(report, "=== VALUESCREEN CRASH REPORT ==="))
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "TestWriteCrashFile")
}

func TestRecoverAsError(t *testing.T) {
	run := func() (err error) {
		defer RecoverAsError(arbor.NewLogger(), "worker-0", &err)
		panic(errors.New("nil row"))
	}

	err := run()
	require.Error(t, err)
	assert.Equal(t, "panic in worker-0: nil row", err.Error())
}
