package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/m4xw311/tinker/agent"
	"github.com/m4xw311/tinker/agent/terminal"
	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
	"github.com/m4xw311/tinker/llm"
	"github.com/m4xw311/tinker/logging"
	"github.com/m4xw311/tinker/session"
	"github.com/m4xw311/tinker/tools"
	"github.com/m4xw311/tinker/tools/mcp"
	"github.com/m4xw311/tinker/tracing"
)

type options struct {
	configPath    string
	llmClient     string
	model         string
	toolset       string
	mode          string
	toolVerbosity string
	maxSteps      int
	logLevel      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "tinker [prompt...]",
		Short: "A coding assistant that works in your terminal",
		Long: `Tinker talks to a language model and lets it use tools on this machine:
creating and editing files, running shell commands, installing packages and
searching the web.

Examples:
  tinker                                  # Interactive session
  tinker write a snake game               # Start with a prompt
  tinker --llm openai --model gpt-4o      # Pick a backend
  tinker -t readonly --tool-verbosity all # Restrict tools and show them`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, opts, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ~/.tinker/config.yaml then ./.tinker/config.yaml)")
	cmd.Flags().StringVar(&opts.llmClient, "llm", "", "model backend: mistral, openai, anthropic, gemini, bedrock or mock")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name")
	cmd.Flags().StringVarP(&opts.toolset, "toolset", "t", "default", "toolset to use")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", string(agent.ModeAuto), "execution mode: 'auto' or 'prompt'")
	cmd.Flags().StringVar(&opts.toolVerbosity, "tool-verbosity", string(agent.ToolVerbosityNone), "tool verbosity level: 'none', 'info', or 'all'")
	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", 0, "maximum model steps per turn")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	return cmd
}

// loadConfig layers the command-line flags over the configuration files.
func loadConfig(cmd *cobra.Command, opts options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.llmClient != "" {
		cfg.LLMClient = opts.llmClient
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = opts.maxSteps
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, cfg.Validate()
}

func parseMode(s string) (agent.Mode, error) {
	switch agent.Mode(s) {
	case agent.ModeAuto, agent.ModePrompt:
		return agent.Mode(s), nil
	}
	return "", errors.New("invalid mode '%s': must be 'auto' or 'prompt'", s)
}

func parseVerbosity(s string) (agent.ToolVerbosity, error) {
	switch agent.ToolVerbosity(s) {
	case agent.ToolVerbosityNone, agent.ToolVerbosityInfo, agent.ToolVerbosityAll:
		return agent.ToolVerbosity(s), nil
	}
	return "", errors.New("invalid tool verbosity '%s': must be 'none', 'info', or 'all'", s)
}

// systemPrompt joins the configured prompt with the tool protocol.
func systemPrompt(base string, defs []tools.Definition) string {
	protocol := llm.ToolProtocolPrompt(defs)
	switch {
	case protocol == "":
		return base
	case base == "":
		return protocol
	}
	return base + "\n\n" + protocol
}

func run(ctx context.Context, cmd *cobra.Command, opts options, initialPrompt string, in io.Reader, out, errOut io.Writer) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return errors.Wrapf(err, "loading configuration")
	}
	mode, err := parseMode(opts.mode)
	if err != nil {
		return err
	}
	verbosity, err := parseVerbosity(opts.toolVerbosity)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(cfg.Log, errOut)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	registry, err := tools.NewBuiltinRegistry(cfg, logger)
	if err != nil {
		return err
	}
	clients, err := mcp.Register(ctx, registry, cfg.MCPServers, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range clients {
			if err := c.Stop(); err != nil {
				logger.Debug("stopping MCP server", "server", c.Name, "error", err)
			}
		}
	}()

	ts, err := cfg.GetToolset(opts.toolset)
	if err != nil {
		return err
	}
	active, err := registry.GetActiveTools(ts)
	if err != nil {
		return err
	}

	backend, err := llm.NewBackend(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "initializing %s backend", cfg.LLMClient)
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}

	defs := active.Definitions()
	conv := session.New(systemPrompt(cfg.SystemPrompt, defs))
	a := agent.New(conv, llm.NewAdapter(backend, defs, logger), active,
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithStop(cfg.Stop),
		agent.WithMode(mode),
		agent.WithVerbosity(verbosity),
		agent.WithLogger(logger),
	)
	logger.Info("session started", "conversation", conv.ID, "llm", cfg.LLMClient, "model", cfg.Model, "tools", active.Names())

	fmt.Fprintln(out, "Tinker is ready. Type your prompt.")
	err = terminal.New(a, in, out).Run(ctx, initialPrompt)
	if errors.Is(err, terminal.ErrFarewell) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
