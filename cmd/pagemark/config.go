package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/crypto"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/settings"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage local model configurations",
		Long: `Model configurations name an OpenAI-compatible endpoint, a vision model and
an API key. The active configuration is sent with every page; fields it
leaves empty are filled by the server's EXTRACT_* environment.

API keys are base64 obfuscated at rest, or AES-256-GCM encrypted when
PAGEMARK_SECRET is set. Commands that take <id> also accept a unique ID
prefix or an exact name.`,
	}
	cmd.AddCommand(
		newConfigListCmd(a),
		newConfigAddCmd(a),
		newConfigUpdateCmd(a),
		newConfigPresetCmd(a),
		newConfigActivateCmd(a),
		newConfigDeleteCmd(a),
		newConfigShowCmd(a),
	)
	return cmd
}

// withStore opens the settings store for the duration of fn.
func (a *app) withStore(fn func(s *settings.Store) error) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return fn(s)
}

func newConfigListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List model configurations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				all, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(all) == 0 {
					a.ui.Info(`no model configurations; add one with "pagemark config add" or "pagemark config preset"`)
					return nil
				}

				tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "\tID\tNAME\tMODEL\tBASE URL\tKEY")
				for _, c := range all {
					mark := ""
					if c.IsActive {
						mark = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, c.ID, c.Name, c.ModelID, c.BaseURL, maskedKey(s, c))
				}
				return tw.Flush()
			})
		},
	}
}

type configFlags struct {
	name     string
	baseURL  string
	modelID  string
	apiKey   string
	prompt   string
	activate bool

	maxRequests  int
	window       int
	maxInputTPM  int
	maxOutputTPM int
	clearLimits  bool
}

func (f *configFlags) bind(cmd *cobra.Command, withActivate bool) {
	fl := cmd.Flags()
	fl.StringVar(&f.name, "name", "", "display name")
	fl.StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible base URL, e.g. https://api.openai.com/v1")
	fl.StringVar(&f.modelID, "model", "", "vision model ID")
	fl.StringVar(&f.apiKey, "api-key", "", "provider API key")
	fl.StringVar(&f.prompt, "prompt", "", "custom extraction prompt (default: built-in)")
	fl.IntVar(&f.maxRequests, "max-requests", 0, "requests allowed per window (0: unlimited)")
	fl.IntVar(&f.window, "request-window", 0, "request window in seconds (default 60)")
	fl.IntVar(&f.maxInputTPM, "max-input-tpm", 0, "input tokens allowed per minute (0: unlimited)")
	fl.IntVar(&f.maxOutputTPM, "max-output-tpm", 0, "output tokens allowed per minute (0: unlimited)")
	if withActivate {
		fl.BoolVar(&f.activate, "activate", false, "make this the active configuration")
	}
}

// rateLimit returns the limits given on the command line, or nil when none were.
func (f *configFlags) rateLimit() *models.RateLimitConfig {
	rl := &models.RateLimitConfig{
		MaxRequests:              f.maxRequests,
		RequestWindowSeconds:     f.window,
		MaxInputTokensPerMinute:  f.maxInputTPM,
		MaxOutputTokensPerMinute: f.maxOutputTPM,
	}
	if *rl == (models.RateLimitConfig{}) {
		return nil
	}
	if rl.MaxRequests > 0 && rl.RequestWindowSeconds <= 0 {
		rl.RequestWindowSeconds = 60
	}
	return rl
}

func newConfigAddCmd(a *app) *cobra.Command {
	f := &configFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a model configuration",
		Example: `  pagemark config add --name "GPT-4o" --base-url https://api.openai.com/v1 \
    --model gpt-4o --api-key sk-... --max-requests 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				c, err := s.Add(cmd.Context(), settings.ConfigInput{
					Name:         f.name,
					BaseURL:      f.baseURL,
					ModelID:      f.modelID,
					APIKey:       f.apiKey,
					CustomPrompt: f.prompt,
					RateLimit:    f.rateLimit(),
					Activate:     f.activate,
				})
				if err != nil {
					return err
				}
				a.reportSaved("added", c)
				return nil
			})
		},
	}
	f.bind(cmd, true)
	return cmd
}

func newConfigUpdateCmd(a *app) *cobra.Command {
	f := &configFlags{}
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a model configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				id, err := resolveID(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}

				u := settings.ConfigUpdate{
					RateLimit:  f.rateLimit(),
					ClearLimit: f.clearLimits,
				}
				fl := cmd.Flags()
				if fl.Changed("name") {
					u.Name = &f.name
				}
				if fl.Changed("base-url") {
					u.BaseURL = &f.baseURL
				}
				if fl.Changed("model") {
					u.ModelID = &f.modelID
				}
				if fl.Changed("api-key") {
					u.APIKey = &f.apiKey
				}
				if fl.Changed("prompt") {
					u.CustomPrompt = &f.prompt
				}

				c, err := s.Update(cmd.Context(), id, u)
				if err != nil {
					return err
				}
				a.reportSaved("updated", c)
				return nil
			})
		},
	}
	f.bind(cmd, false)
	cmd.Flags().BoolVar(&f.clearLimits, "clear-limits", false, "remove all rate limits")
	return cmd
}

func newConfigPresetCmd(a *app) *cobra.Command {
	var apiKey string
	var activate bool
	cmd := &cobra.Command{
		Use:   "preset [key]",
		Short: "List built-in presets, or add one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				presets, err := constants.Presets()
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tNAME\tMODEL\tBASE URL")
				for _, p := range presets {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Key, p.Name, p.ModelID, p.BaseURL)
				}
				return tw.Flush()
			}

			return a.withStore(func(s *settings.Store) error {
				c, err := s.AddPreset(cmd.Context(), args[0], apiKey, activate)
				if err != nil {
					return err
				}
				a.reportSaved("added", c)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key")
	cmd.Flags().BoolVar(&activate, "activate", false, "make this the active configuration")
	return cmd
}

func newConfigActivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a model configuration active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				id, err := resolveID(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.Activate(cmd.Context(), id); err != nil {
					return err
				}
				a.ui.Success("activated %s", id)
				return nil
			})
		},
	}
}

func newConfigDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a model configuration",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				id, err := resolveID(cmd.Context(), s, args[0])
				if err != nil {
					return err
				}
				if err := s.Delete(cmd.Context(), id); err != nil {
					return err
				}
				a.ui.Success("deleted %s", id)

				active, err := s.Active(cmd.Context())
				if err != nil {
					return err
				}
				if active != nil {
					a.ui.Info("active: %s (%s)", active.Name, active.ID)
				}
				return nil
			})
		},
	}
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a model configuration as JSON (default: the active one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *settings.Store) error {
				var c models.ModelConfig
				if len(args) == 0 {
					active, err := s.Active(cmd.Context())
					if err != nil {
						return err
					}
					if active == nil {
						return fmt.Errorf("%w: no active configuration", settings.ErrNotFound)
					}
					c = *active
				} else {
					id, err := resolveID(cmd.Context(), s, args[0])
					if err != nil {
						return err
					}
					if c, err = s.Get(cmd.Context(), id); err != nil {
						return err
					}
				}

				c.APIKey = maskedKey(s, c)
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			})
		},
	}
}

func (a *app) reportSaved(verb string, c models.ModelConfig) {
	state := ""
	if c.IsActive {
		state = ", active"
	}
	a.ui.Success("%s %s (%s%s)", verb, c.Name, c.ID, state)
}

// maskedKey decodes and masks a stored key for display.
func maskedKey(s *settings.Store, c models.ModelConfig) string {
	plain, err := s.DecodeAPIKey(c)
	if err != nil {
		return "(encrypted)"
	}
	return crypto.Mask(plain)
}

// resolveID accepts a full ID, a unique case-insensitive ID prefix or an exact name.
func resolveID(ctx context.Context, s *settings.Store, arg string) (string, error) {
	all, err := s.List(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, c := range all {
		if c.ID == arg {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, strings.ToUpper(arg)) || c.Name == arg {
			matches = append(matches, c.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", settings.ErrNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous: matches %s", arg, strings.Join(matches, ", "))
	}
}
