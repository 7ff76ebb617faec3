package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbzz/add-qufirewall-rules/internal/cli"
)

func TestBindEnvVars(t *testing.T) {
	tcs := map[string]struct {
		envVars       map[string]string
		wantLogLevel  string
		wantLogFormat string
		wantCSV       string
		args          []string
	}{
		"environment variables are bound when no args provided": {
			envVars: map[string]string{
				"QFWTOP_LOG_LEVEL":  "debug",
				"QFWTOP_LOG_FORMAT": "json",
				"QFWTOP_CSV":        "firewall.csv",
			},
			args:          []string{},
			wantLogLevel:  "debug",
			wantLogFormat: "json",
			wantCSV:       "firewall.csv",
		},
		"command line args take precedence over environment variables": {
			envVars: map[string]string{
				"QFWTOP_LOG_LEVEL":  "debug",
				"QFWTOP_LOG_FORMAT": "json",
				"QFWTOP_CSV":        "env.csv",
			},
			args:          []string{"--log-level", "error", "--log-format", "text", "--csv", "args.csv"},
			wantLogLevel:  "error",
			wantLogFormat: "text",
			wantCSV:       "args.csv",
		},
		"partial environment variable override": {
			envVars: map[string]string{
				"QFWTOP_LOG_LEVEL": "warn",
			},
			args:          []string{"--log-format", "json"},
			wantLogLevel:  "warn",
			wantLogFormat: "json",
		},
		"no environment variables uses defaults": {
			envVars:       map[string]string{},
			args:          []string{},
			wantLogLevel:  "info", // Default value.
			wantLogFormat: "text", // Default value.
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			for key, val := range tc.envVars {
				t.Setenv(key, val)
			}

			cmd := cli.NewRootCmd()
			cmd.SetArgs(tc.args)

			// Parse flags (this triggers environment variable binding).
			err := cmd.ParseFlags(tc.args)
			require.NoError(t, err)

			// Check flag values.
			logLevel, err := cmd.Flags().GetString("log-level")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogLevel, logLevel)

			logFormat, err := cmd.Flags().GetString("log-format")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogFormat, logFormat)

			csvPath, err := cmd.Flags().GetString("csv")
			require.NoError(t, err)
			assert.Equal(t, tc.wantCSV, csvPath)
		})
	}
}

// Test that flag usage strings are updated to include environment variable names.
func TestEnvironmentVariableUsageUpdate(t *testing.T) {
	t.Parallel()

	cmd := cli.NewRootCmd()

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Contains(t, logLevelFlag.Usage, "$QFWTOP_LOG_LEVEL")

	csvFlag := cmd.Flags().Lookup("csv")
	require.NotNil(t, csvFlag)
	assert.Contains(t, csvFlag.Usage, "$QFWTOP_CSV")

	configFlag := cmd.Flags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Contains(t, configFlag.Usage, "$QFWTOP_CONFIG")
}
