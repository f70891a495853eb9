package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagemark/internal/client"
	"github.com/jmylchreest/pagemark/internal/config"
	"github.com/jmylchreest/pagemark/internal/crypto"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/settings"
	"github.com/jmylchreest/pagemark/internal/version"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	out    io.Writer
	errOut io.Writer

	verbose bool
	noColor bool

	cfg    *config.ClientConfig
	logger *slog.Logger
	ui     *ui
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "pagemark",
		Short: "Convert documents to Markdown with a vision model",
		Long: `pagemark renders PDF pages and images, sends them one page at a time to a
pagemark server for Markdown extraction, and assembles the result. DOCX
files are converted by the server directly.

The server URL and access token come from PAGEMARK_SERVER_URL and
PAGEMARK_ACCESS_TOKEN. Model configurations are stored locally; see
"pagemark config".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newExtractCmd(a),
		newConfigCmd(a),
		newProbeCmd(a),
		newPagesCmd(a),
		newVersionCmd(a),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}

func (a *app) init() error {
	if a.noColor {
		color.NoColor = true
	}
	a.ui = newUI(a.out, a.errOut)

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.logger = logging.New(logging.Options{Output: a.errOut, Format: "text", Level: level})

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *app) newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:     a.cfg.ServerURL,
		AccessToken: a.cfg.AccessToken,
		Timeout:     a.cfg.HTTPTimeout,
		Logger:      a.logger,
	})
}

func (a *app) openStore() (*settings.Store, error) {
	codec, err := crypto.NewKeyCodec(a.cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return settings.Open(a.cfg.SettingsPath(), codec, a.logger)
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.out, "pagemark "+version.Get().String())
			return err
		},
	}
}
