// Command regionctl inspects and maintains a relational region store.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/regionkeep/regionstore/internal/config"
	"github.com/regionkeep/regionstore/internal/monitoring"
	"github.com/regionkeep/regionstore/internal/version"
)

const iniFilename = "regionctl.ini"

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

type storeConfig struct {
	Config  string   `long:"config" env:"CONFIG" description:"Path to a JSON data source file. When unset the data source is read from REGIONSTORE_* variables"`
	EnvFile []string `long:"env-file" description:"dotenv file loaded before reading REGIONSTORE_* variables (repeatable)"`
}

// DataSource resolves the configured data source.
func (c storeConfig) DataSource() (*config.DataSource, error) {
	if c.Config != "" {
		return config.Load(c.Config)
	}
	return config.FromEnv(c.EnvFile...)
}

// Config is the top-level configuration object of regionctl, filled from the
// INI file, the environment and the command line.
var Config = new(struct {
	Store storeConfig       `group:"Store" namespace:"store" env-namespace:"REGIONSTORE"`
	Log   monitoring.Config `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

func newParser() *flags.Parser {
	parser := flags.NewParser(Config, flags.Default)

	addCmd(parser, "migrate", "Manage the region schema", `
Apply or inspect schema migrations. Databases created by older releases
without a migrations table are baselined automatically.
`, &cmdMigrate{})
	addCmd(parser, "worlds", "List stored worlds", `
List every world with a row in the world table.
`, &cmdWorlds{})
	addCmd(parser, "dump", "Print the regions of a world", `
Load every region of a world and print it as YAML.
`, &cmdDump{})
	addCmd(parser, "copy", "Copy the regions of one world to another", `
Load every region of the source world and save them as the complete region
set of the target world. Regions of the target not present in the source
are removed.
`, &cmdCopy{})
	addCmd(parser, "version", "Print the build version", `
Print the version, commit and build time of this binary.
`, &cmdVersion{})
	return parser
}

func addCmd(parser *flags.Parser, name, short, long string, cmd interface{}) {
	if _, err := parser.AddCommand(name, short, long, cmd); err != nil {
		log.WithFields(log.Fields{"err": err, "command": name}).Fatal("failed to add command")
	}
}

func main() {
	parser := newParser()
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if err := monitoring.Init(Config.Log); err != nil {
			return err
		}
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	// Options may also come from an INI file in the working directory.
	origOptions := parser.Options
	parser.Options |= flags.IgnoreUnknown
	if err := flags.NewIniParser(parser).ParseFile(iniFilename); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	parser.Options = origOptions

	if _, err := parser.Parse(); err != nil {
		if flagErr, ok := err.(*flags.Error); ok {
			switch flagErr.Type {
			case flags.ErrHelp:
				os.Exit(0)
			case flags.ErrCommandRequired:
				// Extend go-flag's "Please specify one command" output with the full usage.
				os.Stderr.WriteString("\n")
				parser.WriteHelp(os.Stderr)
				fmt.Fprintf(os.Stderr, "\nVersion %s.\n", version.String())
			}
		}
		os.Exit(1)
	}
}
