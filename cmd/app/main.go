package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/inkwell/internal"
	"github.com/starford/inkwell/internal/api"
	pkgconfig "github.com/starford/inkwell/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

// dispatch runs one bridge call against a fresh runtime and prints the
// result as JSON. Process logs go to stderr.
func dispatch(ctx context.Context, cmd *cli.Command, channel, action string, data any) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	defer rt.Close()

	req := api.Request{Action: action}
	if data != nil {
		if req.Data, err = json.Marshal(data); err != nil {
			return err
		}
	}
	res, err := rt.Bridge().Dispatch(ctx, channel, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

func call(channel, action string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return dispatch(ctx, cmd, channel, action, nil)
	}
}

func callWithArg(channel, action, name string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		v, err := requireArg(cmd, name)
		if err != nil {
			return err
		}
		return dispatch(ctx, cmd, channel, action, v)
	}
}

// saveBlog reads a blog record from the file argument, or stdin when it is
// absent or "-".
func saveBlog(ctx context.Context, cmd *cli.Command) error {
	var r io.Reader = os.Stdin
	if name := cmd.Args().First(); name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("read blog: %w", err)
	}
	return dispatch(ctx, cmd, "blogs", "save", raw)
}

// setConfig overlays the given flags on the stored profile. The token is
// only replaced when --token is passed.
func setConfig(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := internal.Open(internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	p, err := rt.Profiles.Load()
	rt.Close()
	if err != nil {
		return err
	}

	p.Token = ""
	for flag, field := range map[string]*string{
		"owner":   &p.Owner,
		"repo":    &p.Repo,
		"branch":  &p.Branch,
		"token":   &p.Token,
		"api-url": &p.APIURL,
	} {
		if cmd.IsSet(flag) {
			*field = cmd.String(flag)
		}
	}
	return dispatch(ctx, cmd, "config", "save", p)
}

func main() {
	cmd := &cli.Command{
		Name:    "inkwell",
		Usage:   "Blog persistence over the GitHub Contents API",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP bridge for the UI",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the blog tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:  "blogs",
				Usage: "Read and write blogs in the configured repository",
				Commands: []*cli.Command{
					{Name: "list", Usage: "List the blog index", Action: call("blogs", "read")},
					{Name: "get", Usage: "Print one blog", ArgsUsage: "<slug>", Action: callWithArg("blogs", "get", "slug")},
					{Name: "save", Usage: "Save a blog from a JSON file or stdin", ArgsUsage: "[file]", Action: saveBlog},
					{Name: "delete", Usage: "Remove a blog from the index", ArgsUsage: "<slug>", Action: callWithArg("blogs", "delete", "slug")},
				},
			},
			{
				Name:  "config",
				Usage: "Show or change the GitHub profile",
				Commands: []*cli.Command{
					{Name: "show", Usage: "Print the profile with the token redacted", Action: call("config", "read")},
					{
						Name:   "set",
						Usage:  "Update profile fields",
						Action: setConfig,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "owner", Usage: "Repository owner"},
							&cli.StringFlag{Name: "repo", Usage: "Repository name"},
							&cli.StringFlag{Name: "branch", Usage: "Branch to commit to"},
							&cli.StringFlag{Name: "token", Usage: "Personal access token"},
							&cli.StringFlag{Name: "api-url", Usage: "API base URL for GitHub Enterprise"},
						},
					},
				},
			},
			{
				Name:  "log",
				Usage: "Inspect the operations log",
				Commands: []*cli.Command{
					{Name: "read", Usage: "Print the operations log", Action: call("logger", "read")},
					{Name: "clear", Usage: "Truncate the operations log", Action: call("logger", "clear")},
				},
			},
			{
				Name:  "journal",
				Usage: "Inspect and repair partially applied operations",
				Commands: []*cli.Command{
					{Name: "list", Usage: "List unresolved entries", Action: call("journal", "list")},
					{Name: "resolve", Usage: "Mark an entry resolved", ArgsUsage: "<id>", Action: callWithArg("journal", "resolve", "entry id")},
					{Name: "replay", Usage: "Repair the index for an entry and resolve it", ArgsUsage: "<id>", Action: callWithArg("journal", "replay", "entry id")},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
