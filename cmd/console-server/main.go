// ABOUTME: Entry point for the assistant console server
// ABOUTME: Serves the admin API and handles first-run setup of config and owner account

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/client"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/server"
	"github.com/2389/assistant-console/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                _     _              _
  __ _ ___ ___(_)___| |_ __ _ _ __ | |_
 / _' / __/ __| / __| __/ _' | '_ \| __|
| (_| \__ \__ \ \__ \ || (_| | | | | |_
 \__,_|___/___/_|___/\__\__,_|_| |_|\__|  console
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: console-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                                  Start the console server")
		fmt.Println("  init [--force]                         Write a starter config and secret")
		fmt.Println("  bootstrap --username U --password P    Create the first owner account")
		fmt.Println("  health                                 Check server health")
		fmt.Println()
		fmt.Println("The config path comes from CONSOLE_CONFIG or ~/.config/assistant-console/console.yaml.")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Args[2:])
	case "bootstrap":
		err = runBootstrap(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Server.GRPCAddr != "" {
		fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	} else {
		fmt.Printf("gRPC:      ")
		gray.Println("disabled")
	}
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Knowledge.Watch {
		green.Print("    ▶ ")
		fmt.Println("Knowledge: watching directory resources")
	}
	fmt.Println()

	logger.Info("starting assistant console",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
	)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{mu: &sync.Mutex{}, level: level})
}

// colorHandler writes one colorized line per record. Copies made by
// WithAttrs and WithGroup share the mutex.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch {
	case r.Level >= slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	case r.Level >= slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case r.Level >= slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	default:
		buf.WriteString(color.MagentaString("DBG "))
	}
	buf.WriteString(r.Message)

	write := func(a slog.Attr) {
		buf.WriteString(color.HiBlackString(" " + h.prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprint(os.Stdout, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// runInit writes the example config and a .env holding a fresh JWT secret.
func runInit(args []string) error {
	fset := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fset.Bool("force", false, "overwrite an existing config")
	if err := fset.Parse(args); err != nil {
		return err
	}

	configPath := config.DefaultPath()
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(config.Example()), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)

	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	env, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", envPath, err)
	}
	if env == nil {
		env = map[string]string{}
	}
	if env["CONSOLE_JWT_SECRET"] == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		env["CONSOLE_JWT_SECRET"] = base64.StdEncoding.EncodeToString(secret)
		if err := godotenv.Write(env, envPath); err != nil {
			return fmt.Errorf("writing %s: %w", envPath, err)
		}
		if err := os.Chmod(envPath, 0o600); err != nil {
			return fmt.Errorf("securing %s: %w", envPath, err)
		}
		green.Printf("  ✓ Generated JWT secret in %s\n", envPath)
	}

	fmt.Println()
	color.New(color.FgYellow).Println("  Next:")
	fmt.Println("    console-server bootstrap --username admin --password '...'")
	fmt.Println("    console-server serve")
	fmt.Println()
	return nil
}

// runBootstrap creates the first owner directly in the database. It refuses
// to run once any admin user exists.
func runBootstrap(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	username := fset.String("username", "", "owner username")
	password := fset.String("password", "", "owner password (or CONSOLE_BOOTSTRAP_PASSWORD)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fset.Arg(0))
	}
	if *password == "" {
		*password = os.Getenv("CONSOLE_BOOTSTRAP_PASSWORD")
	}
	if *username == "" || *password == "" {
		return errors.New("--username and --password are required")
	}

	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	user, err := auth.NewUsers(s).Bootstrap(ctx, *username, *password)
	if err != nil {
		return fmt.Errorf("creating owner: %w", err)
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)
	green.Printf("  ✓ Created owner: %s\n", user.Username)
	fmt.Println()
	cyan.Println("  Owner")
	cyan.Println("  -----")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
	fmt.Println()
	color.New(color.FgYellow).Println("  Ready to go:")
	fmt.Println("    console-server serve")
	fmt.Printf("    console-admin login %s\n", user.Username)
	fmt.Println()
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	h, err := client.New("http://"+cfg.Server.HTTPAddr, "").Health(ctx)
	if err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Printf("live: %s\nready: %s\n", h.Live, h.Ready)
	return nil
}
