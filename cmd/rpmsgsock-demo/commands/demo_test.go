package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemoCommandEchoesMessage(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"demo", "--message", "ping"})

	require.NoError(t, Execute())
	require.Contains(t, out.String(), `received: "ping"`)
	require.True(t, strings.Contains(out.String(), "round trip:"))
}
