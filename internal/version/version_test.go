package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, "slamon-agent")

	out := buf.String()
	assert.Contains(t, out, "slamon-agent dev\n")
	assert.Contains(t, out, "commit:     unknown")
	assert.Contains(t, out, GoVersion())
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "slamon-go/dev", UserAgent())
}
