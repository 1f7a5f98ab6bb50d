package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/elena-cabrera/markdown-os/internal"
	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/example"
	"github.com/elena-cabrera/markdown-os/internal/mcpserver"
	"github.com/elena-cabrera/markdown-os/internal/search"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/watch"
	pkgconfig "github.com/elena-cabrera/markdown-os/pkg/config"
)

func main() {
	cmd := &cli.Command{
		Name:  "markdown-os",
		Usage: "Open and edit markdown files in a local browser UI",
		Commands: []*cli.Command{
			openCommand(),
			exampleCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration: defaults, then the
// optional config file on top.
func loadConfig(configPath string) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if configPath != "" {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	return cfg, nil
}

func openCommand() *cli.Command {
	return &cli.Command{
		Name:      "open",
		Usage:     "Start the local editor for a markdown file or a directory of them",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host interface to bind",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Preferred start port; auto-increments when occupied",
				Value: 8000,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("MARKDOWN_OS_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "Do not open the browser automatically",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			target := cmd.Args().First()
			if target == "" {
				return fmt.Errorf("path argument is required")
			}

			cfg, err := loadConfig(cmd.String("config"))
			if err != nil {
				return err
			}
			if err := applyTarget(cfg, target); err != nil {
				return err
			}
			cfg.App.HTTP.Host = cmd.String("host")
			cfg.App.HTTP.Port = int(cmd.Int("port"))

			return runEditor(ctx, cfg, cmd.Bool("no-browser"))
		},
	}
}

// applyTarget resolves the CLI path argument into workspace settings:
// directories select folder mode, markdown files select file mode.
func applyTarget(cfg *internal.Config, target string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", abs)
	}
	if info.IsDir() {
		cfg.Workspace.Mode = string(docservice.ModeFolder)
		cfg.Workspace.Path = abs
		return nil
	}
	if !hasMarkdownExt(abs, cfg.Workspace.ExtensionsOrDefault()) {
		return fmt.Errorf("only markdown files are supported (%s)",
			strings.Join(cfg.Workspace.ExtensionsOrDefault(), ", "))
	}
	cfg.Workspace.Mode = string(docservice.ModeFile)
	cfg.Workspace.Path = abs
	return nil
}

func hasMarkdownExt(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// runEditor probes for a free port, announces the URL, schedules the
// browser and runs the server until interrupted.
func runEditor(ctx context.Context, cfg *internal.Config, noBrowser bool) error {
	port, err := findAvailablePort(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	if err != nil {
		return err
	}
	cfg.App.HTTP.Port = port

	url := fmt.Sprintf("http://%s", cfg.App.HTTP.Address())
	fmt.Printf("Opening %s at %s\n", color.CyanString(cfg.Workspace.Path), color.GreenString(url))

	if !noBrowser {
		// Give the server a beat to come up before pointing the
		// browser at it.
		timer := time.AfterFunc(400*time.Millisecond, func() { openBrowser(url) })
		defer timer.Stop()
	}

	return internal.Run(ctx, internal.WithConfig(cfg))
}

// findAvailablePort returns the first bindable port at or above start.
func findAvailablePort(host string, start int) (int, error) {
	if start < 1 || start > 65535 {
		return 0, fmt.Errorf("start port must be between 1 and 65535")
	}
	for port := start; port <= 65535; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no available TCP port found in range %d-65535", start)
}

// openBrowser opens url with the platform's default browser. Failure is
// silent; the URL is already printed.
func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}

func exampleCommand() *cli.Command {
	return &cli.Command{
		Name:      "example",
		Usage:     "Generate a showcase markdown file demonstrating the editor",
		ArgsUsage: "[output]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the generated file in the editor after creation",
			},
			&cli.BoolFlag{
				Name:    "force",
				Aliases: []string{"f"},
				Usage:   "Overwrite an existing file without prompting",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			output := cmd.Args().First()
			if output == "" {
				output = "example.md"
			}
			path, err := example.ResolveOutputPath(output)
			if err != nil {
				return err
			}

			if _, statErr := os.Stat(path); statErr == nil && !cmd.Bool("force") {
				if !confirm(fmt.Sprintf("File %s already exists. Overwrite?", path)) {
					fmt.Println("Cancelled.")
					return nil
				}
			}

			if err := example.Write(path); err != nil {
				return err
			}
			color.Green("Created example file: %s", path)
			fmt.Println("Next step:")
			fmt.Printf("  markdown-os open %s\n", path)

			if cmd.Bool("open") {
				fmt.Println("Opening in editor...")
				cfg, err := loadConfig("")
				if err != nil {
					return err
				}
				if err := applyTarget(cfg, path); err != nil {
					return err
				}
				return runEditor(ctx, cfg, false)
			}
			return nil
		},
	}
}

// confirm asks a yes/no question on stdin, defaulting to no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the workspace as MCP tools over stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "Workspace root directory",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "SQLite index path (in-memory when empty)",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			// stdout carries the MCP transport; logs go to stderr.
			logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

			ws, err := storage.NewWorkspace(cmd.String("dir"), nil)
			if err != nil {
				return fmt.Errorf("init workspace: %w", err)
			}
			defer ws.ReleaseAll()

			idx, err := search.Open(cmd.String("index"))
			if err != nil {
				return fmt.Errorf("init search index: %w", err)
			}
			defer idx.Close()

			if err := search.Sync(idx, ws, logger); err != nil {
				logger.Warn("initial index sync failed", slog.String("error", err.Error()))
			}

			svc := docservice.NewFolderService(ws, idx, &watch.Marker{}, logger)
			return mcpserver.New(svc).ServeStdio()
		},
	}
}
