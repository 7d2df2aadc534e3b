package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "v9.9.9"

	info := Info()
	assert.True(t, strings.HasPrefix(info, "keyring v9.9.9 "))
	assert.Contains(t, info, runtime.Version())
}
