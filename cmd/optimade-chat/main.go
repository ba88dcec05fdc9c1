package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	// Packages
	kong "github.com/alecthomas/kong"
	godotenv "github.com/joho/godotenv"
	client "github.com/mutablelogic/go-client"

	chat "github.com/optimade-mcp/chat/pkg/chat"
	mcp "github.com/optimade-mcp/chat/pkg/mcp"
	mcpclient "github.com/optimade-mcp/chat/pkg/mcp/client"
	provider "github.com/optimade-mcp/chat/pkg/provider"
	types "github.com/optimade-mcp/chat/pkg/types"
	version "github.com/optimade-mcp/chat/pkg/version"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	// Debugging
	Debug   bool `name:"debug" help:"Enable debug output"`
	Verbose bool `name:"verbose" help:"Enable verbose output"`

	// Provider selection
	Provider    string  `env:"API_PROVIDER" help:"Chat completions provider (openai, openrouter, deepseek)"`
	Model       string  `name:"model" help:"Override the configured model"`
	Temperature float64 `name:"temperature" default:"-1" help:"Sampling temperature between 0 and 2"`
	Transport   string  `name:"transport" default:"auto" enum:"auto,stdio,http,sse" help:"Force the MCP transport"`
	MCPKey      string  `name:"mcp-key" env:"MCP_API_KEY" help:"Bearer token for remote MCP servers"`

	// Providers
	OpenAI     `embed:"" help:"OpenAI configuration"`
	OpenRouter `embed:"" help:"OpenRouter configuration"`
	DeepSeek   `embed:"" help:"DeepSeek configuration"`

	// Context
	ctx        context.Context
	config     *Config
	clientopts []client.ClientOpt
}

type OpenAI struct {
	OpenAIKey     string `env:"OPENAI_API_KEY" help:"OpenAI API key"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" help:"OpenAI endpoint override"`
	OpenAIModel   string `env:"OPENAI_MODEL" help:"OpenAI model"`
}

type OpenRouter struct {
	OpenRouterKey     string `env:"OPENROUTER_API_KEY" help:"OpenRouter API key"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" help:"OpenRouter endpoint override"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL" help:"OpenRouter model"`
}

type DeepSeek struct {
	DeepSeekKey     string `env:"DEEPSEEK_API_KEY" help:"DeepSeek API key"`
	DeepSeekBaseURL string `env:"DEEPSEEK_BASE_URL" help:"DeepSeek endpoint override"`
	DeepSeekModel   string `env:"DEEPSEEK_MODEL" help:"DeepSeek model"`
}

type CLI struct {
	Globals

	// Commands
	Chat    ChatCmd    `cmd:"" default:"withargs" help:"Start an interactive chat session"`
	Query   QueryCmd   `cmd:"" help:"Run a single query and exit"`
	Tools   ToolsCmd   `cmd:"" help:"List the tools available on the server"`
	Ping    PingCmd    `cmd:"" help:"Check the connection to the server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

////////////////////////////////////////////////////////////////////////////////
// MAIN

func main() {
	// Load .env from the working directory, if present
	_ = godotenv.Load()

	// Create a cli parser
	cli := CLI{}
	cmd := kong.Parse(&cli,
		kong.Name(execName()),
		kong.Description("Natural language interface to OPTIMADE materials databases over MCP"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{},
	)

	// Create a context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cli.Globals.ctx = ctx

	// Apply defaults from the optional configuration file
	config, err := LoadConfig()
	cmd.FatalIfErrorf(err)
	cli.Globals.config = config
	cli.Globals.applyConfig(config)

	// Client options
	if cli.Debug || cli.Verbose {
		cli.Globals.clientopts = append(cli.Globals.clientopts, client.OptTrace(os.Stderr, cli.Verbose))
	}

	// Run the command
	if err := cmd.Run(&cli.Globals); err != nil {
		cmd.FatalIfErrorf(err)
		return
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// NewProvider creates the chat-completions client for the selected provider
func (g *Globals) NewProvider() (*provider.Client, error) {
	var key, base, model string

	name := provider.Name(strings.ToLower(g.Provider))
	switch name {
	case provider.OpenAI:
		key, base, model = g.OpenAIKey, g.OpenAIBaseURL, g.OpenAIModel
	case provider.OpenRouter:
		key, base, model = g.OpenRouterKey, g.OpenRouterBaseURL, g.OpenRouterModel
	case provider.DeepSeek:
		key, base, model = g.DeepSeekKey, g.DeepSeekBaseURL, g.DeepSeekModel
	default:
		return nil, types.ErrBadParameter.Withf("unknown provider: %q", g.Provider)
	}
	if g.Model != "" {
		model = g.Model
	}

	return provider.New(name, key, base, model, g.clientopts...)
}

// NewMCP creates an MCP client for the given server, which is either a URL
// or the path to a local server script
func (g *Globals) NewMCP(server string) (*mcpclient.Client, error) {
	opts := g.clientopts
	var token client.Token
	if g.MCPKey != "" {
		token = client.Token{Scheme: client.Bearer, Value: g.MCPKey}
		opts = append(opts, client.OptReqToken(token))
	}

	m, err := mcpclient.New(server, mcpclient.Transport(g.Transport), mcp.ClientInfo{
		Name:    execName(),
		Version: version.Version(),
	}, opts...)
	if err != nil {
		return nil, err
	}
	if g.MCPKey != "" {
		m.SetToken(token)
	}

	// Surface server notifications on stderr when requested
	if g.Debug || g.Verbose {
		m.OnNotification(func(method string, params json.RawMessage) {
			fmt.Fprintf(os.Stderr, "%s %s\n", method, params)
		})
	}

	return m, nil
}

// NewSession creates a connected chat session over the provider and server
func (g *Globals) NewSession(server, systemPrompt string) (*chat.Session, error) {
	p, err := g.NewProvider()
	if err != nil {
		return nil, err
	}
	m, err := g.NewMCP(server)
	if err != nil {
		return nil, err
	}

	var opts []chat.Opt
	if systemPrompt == "" {
		systemPrompt = g.config.SystemPrompt
	}
	if systemPrompt != "" {
		opts = append(opts, chat.OptSystemPrompt(systemPrompt))
	}
	if g.Temperature >= 0 {
		opts = append(opts, chat.OptTemperature(g.Temperature))
	}

	session := chat.New(p, m, opts...)
	if err := session.Connect(g.ctx); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func execName() string {
	// The name of the executable
	name, err := os.Executable()
	if err != nil {
		panic(err)
	} else {
		return filepath.Base(name)
	}
}
