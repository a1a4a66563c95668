package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# style name or JSON path for the help screen (default "auto")
style: "auto"
# word-wrap at width, 0 for the terminal width
width: 0

# voice name or id, mode and speed are stored with your API key once set
# voice: "Rachel"
# mode: "englishfast"
# speed: 1.0

# accept remote commands on this address
# listen: "127.0.0.1:7457"

api:
  url: "https://api.elevenlabs.io"

# audio that was fully received is kept and replayed for the same text
cache:
  # size in MiB
  size: 256
  disabled: false
  # dir: "~/.cache/readaloud/audio"
`

var printConfigPath bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Edit the readaloud config file",
	Long: paragraph(fmt.Sprintf("\n%s the readaloud config file with your EDITOR. A default file is written first if there is none. "+
		"The API key, voice, mode and speed live in a separate settings file.", keyword("Edit"))),
	Example: paragraph("readaloud config\nreadaloud config --path\nreadaloud config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if printConfigPath {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), configFile)
			return err //nolint:wrapcheck
		}

		c, err := editor.Cmd("readaloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run editor: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfigPath, "path", false, "print the config file path and exit")
}

// ensureConfigFile resolves configFile and writes the default config there
// when the file is missing.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	switch ext := filepath.Ext(configFile); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("%q is not a supported configuration type: use .yaml or .yml", ext)
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	log.Debug("Wrote default configuration", "path", configFile)
	return nil
}
