package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/require"
)

func TestSeverity(t *testing.T) {
	cases := map[string]string{
		"debug":    "DEBUG",
		" Warn ":   "WARN",
		"warning":  "WARN",
		"ERROR":    "ERROR",
		"trace":    "TRACE",
		"":         "INFO",
		"shouting": "INFO",
	}
	for in, want := range cases {
		require.Equal(t, want, severity(in), "level %q", in)
	}
}

func TestServerLoggerConfig(t *testing.T) {
	cfg := serverLoggerConfig("guildrest", "debug", "relay_ns")
	require.Equal(t, logging.ProfileStructured, cfg.Profile)
	require.EqualValues(t, "DEBUG", cfg.DefaultLevel)
	require.Equal(t, "guildrest", cfg.Service)
	require.Equal(t, "relay_ns", cfg.StaticFields["namespace"])
	require.Equal(t, "relay", cfg.StaticFields["component"])
	require.Len(t, cfg.Sinks, 1)
	require.EqualValues(t, "stderr", cfg.Sinks[0].Console.Stream)

	bare := serverLoggerConfig("guildrest", "info", "")
	require.NotContains(t, bare.StaticFields, "namespace")
}
