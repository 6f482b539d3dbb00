package app

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name      string
		cmdArgs   []string
		wantCmd   string
		wantArgs  []string
		wantError bool
	}{
		{
			name:     "command with dash separator",
			cmdArgs:  []string{"run", "--watch", "src", "--", "node", "server.js", "--port", "3000"},
			wantCmd:  "node",
			wantArgs: []string{"server.js", "--port", "3000"},
		},
		{
			name:     "command with no extra args",
			cmdArgs:  []string{"run", "--", "python"},
			wantCmd:  "python",
			wantArgs: []string{},
		},
		{
			name:      "no dash and no positional args",
			cmdArgs:   []string{"run"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "run", Args: cobra.ArbitraryArgs, RunE: func(*cobra.Command, []string) error { return nil }}
			cmd.Flags().String("watch", "", "")
			cmd.FParseErrWhitelist = cobra.FParseErrWhitelist{UnknownFlags: true}

			var gotCmd string
			var gotArgs []string
			var gotErr error
			cmd.RunE = func(c *cobra.Command, args []string) error {
				gotCmd, gotArgs, gotErr = splitCommand(c, args)
				return nil
			}
			cmd.SetArgs(tt.cmdArgs[1:])
			require.NoError(t, cmd.Execute())

			if tt.wantError {
				assert.Error(t, gotErr)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.wantCmd, gotCmd)
			assert.Equal(t, tt.wantArgs, gotArgs)
		})
	}
}
