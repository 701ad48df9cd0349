// ABOUTME: Admin CLI for the assistant console
// ABOUTME: Talks to the REST API with a bearer token to inspect and render templates

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/assistant-console/internal/client"
)

const banner = `
                         _                   _           _
  ___ ___  _ __  ___  ___| | ___        __ _  __| |_ __ ___ (_)_ __
 / __/ _ \| '_ \/ __|/ _ \ |/ _ \_____ / _' |/ _' | '_ ' _ \| | '_ \
| (_| (_) | | | \__ \ (_) | |  __/_____| (_| | (_| | | | | | | | | | |
 \___\___/|_| |_|___/\___/|_|\___|      \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CONSOLE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := client.New(baseURL, getToken())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(ctx, c, args)
	case "me":
		err = cmdMe(ctx, c)
	case "status":
		err = cmdStatus(ctx, c, baseURL)
	case "templates":
		err = cmdTemplates(ctx, c, args)
	case "categories":
		err = cmdCategories(ctx, c)
	case "providers":
		err = cmdProviders(ctx, c)
	case "knowledge":
		err = cmdKnowledge(ctx, c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			color.Red("Error: %v (run `console-admin login` or set CONSOLE_TOKEN)\n", err)
		} else {
			color.Red("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: console-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login <username>                  Log in and save a token")
	fmt.Println("  me                                Show the logged-in user")
	fmt.Println("  status                            Show server health and your identity")
	fmt.Println("  templates [list] [--category C]   List templates")
	fmt.Println("  templates show <id>               Show a template and its variables")
	fmt.Println("  templates scan <file|->           List the placeholders in a file")
	fmt.Println("  templates render <id> [k=v ...]   Render a template with values")
	fmt.Println("  categories                        List categories")
	fmt.Println("  providers                         List model providers")
	fmt.Println("  knowledge search <query>          Search the knowledge base")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  CONSOLE_URL        Console base URL (default: http://localhost:8080)")
	fmt.Println("  CONSOLE_TOKEN      Bearer token (default: the token saved by login)")
	fmt.Println("  CONSOLE_PASSWORD   Password for login (prompted when unset)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  console-admin login admin")
	fmt.Println("  console-admin templates --category onboarding")
	fmt.Println("  console-admin templates render 3f2a... name=Ada product=Console")
	fmt.Println()
}

// tokenPath is where login stores the token.
func tokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "console-token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "assistant-console", "token")
}

func getToken() string {
	if token := os.Getenv("CONSOLE_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func cmdLogin(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: console-admin login <username>")
	}
	password := os.Getenv("CONSOLE_PASSWORD")
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	resp, err := c.Login(ctx, args[0], password)
	if err != nil {
		return err
	}

	path := tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(resp.Token), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Logged in as %s (%s)\n", resp.User.Username, resp.User.Role)
	fmt.Printf("    token saved to %s, expires %s\n", path, resp.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func cmdMe(ctx context.Context, c *client.Client) error {
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	fmt.Printf("  ID:            %s\n", me.ID)
	fmt.Printf("  Username:      %s\n", me.Username)
	fmt.Printf("  Display Name:  %s\n", me.DisplayName)
	color.New(color.FgGreen).Printf("  Role:          %s\n", me.Role)
	fmt.Println()
	return nil
}

func cmdStatus(ctx context.Context, c *client.Client, baseURL string) error {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Printf("Console: %s\n", baseURL)
	h, err := c.Health(ctx)
	if err != nil {
		red.Printf("  ✗ %v\n", err)
		return nil
	}
	green.Printf("  ✓ live (%s), %s\n", h.Live, h.Ready)

	me, err := c.Me(ctx)
	if err != nil {
		color.Yellow("  ! not logged in: %v\n", err)
		return nil
	}
	green.Printf("  ✓ logged in as %s (%s)\n", me.Username, me.Role)
	return nil
}

func cmdTemplates(ctx context.Context, c *client.Client, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		return templatesList(ctx, c, args)
	case "show":
		if len(args) != 1 {
			return errors.New("usage: console-admin templates show <id>")
		}
		return templatesShow(ctx, c, args[0])
	case "scan":
		if len(args) != 1 {
			return errors.New("usage: console-admin templates scan <file|->")
		}
		return templatesScan(ctx, c, args[0])
	case "render":
		if len(args) < 1 {
			return errors.New("usage: console-admin templates render <id> [name=value ...]")
		}
		return templatesRender(ctx, c, args[0], args[1:])
	default:
		return fmt.Errorf("unknown templates subcommand: %s", sub)
	}
}

func templatesList(ctx context.Context, c *client.Client, args []string) error {
	var f client.TemplateFilter
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--category" && i+1 < len(args):
			f.Category = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--category="):
			f.Category = strings.TrimPrefix(args[i], "--category=")
		case args[i] == "--query" && i+1 < len(args):
			f.Query = args[i+1]
			i++
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	ts, err := c.ListTemplates(ctx, f)
	if err != nil {
		return err
	}
	if len(ts) == 0 {
		fmt.Println("No templates.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tVARIABLES\tSTATE")
	for _, t := range ts {
		state := "active"
		if !t.IsActive {
			state = "inactive"
		}
		if t.IsDefault {
			state += ",default"
		}
		if len(t.Stale) > 0 {
			state += ",stale"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.Name, t.Category, len(t.Variables), state)
	}
	return w.Flush()
}

func templatesShow(ctx context.Context, c *client.Client, id string) error {
	t, err := c.GetTemplate(ctx, id)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Printf("  %s\n", t.Name)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	fmt.Printf("  category: %s  updated: %s\n\n", t.Category, t.UpdatedAt.Local().Format(time.DateTime))
	for _, line := range strings.Split(t.Content, "\n") {
		fmt.Printf("    %s\n", line)
	}
	fmt.Println()

	if len(t.Variables) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  VARIABLE\tTYPE\tREQUIRED\tDEFAULT\tDESCRIPTION")
		for _, v := range t.Variables {
			def := "-"
			if v.DefaultValue != nil {
				def = *v.DefaultValue
			}
			fmt.Fprintf(w, "  %s\t%s\t%t\t%s\t%s\n", v.Name, v.Type, v.Required, def, v.Description)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	if len(t.Stale) > 0 {
		fmt.Println()
		yellow.Printf("  Registered but not in content: %s\n", strings.Join(t.Stale, ", "))
	}
	fmt.Println()
	return nil
}

func templatesScan(ctx context.Context, c *client.Client, path string) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	result, err := c.Scan(ctx, string(data), nil)
	if err != nil {
		return err
	}
	if len(result.Placeholders) == 0 {
		fmt.Println("No placeholders.")
		return nil
	}
	for _, name := range result.Placeholders {
		fmt.Println(name)
	}
	return nil
}

func templatesRender(ctx context.Context, c *client.Client, id string, pairs []string) error {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return fmt.Errorf("expected name=value, got %q", p)
		}
		values[name] = value
	}

	preview, err := c.Render(ctx, id, values)
	if err != nil {
		return err
	}
	fmt.Println(preview.Text)

	yellow := color.New(color.FgYellow)
	if len(preview.Missing) > 0 {
		yellow.Fprintf(os.Stderr, "missing required: %s\n", strings.Join(preview.Missing, ", "))
	}
	for _, e := range preview.Errors {
		yellow.Fprintln(os.Stderr, e.Error())
	}
	return nil
}

func cmdCategories(ctx context.Context, c *client.Client) error {
	cats, err := c.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		fmt.Println("No categories.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
	for _, cat := range cats {
		fmt.Fprintf(w, "%s\t%s\t%s\n", cat.ID, cat.Name, cat.Description)
	}
	return w.Flush()
}

func cmdProviders(ctx context.Context, c *client.Client) error {
	ps, err := c.ListProviders(ctx)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		fmt.Println("No providers.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tDEFAULT MODEL\tKEY\tACTIVE")
	for _, p := range ps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Kind, p.DefaultModel, p.APIKey, p.IsActive)
	}
	return w.Flush()
}

func cmdKnowledge(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 || args[0] != "search" {
		return errors.New("usage: console-admin knowledge search <query>")
	}
	results, err := c.SearchKnowledge(ctx, strings.Join(args[1:], " "), 0)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, r := range results {
		cyan.Printf("%s", r.Title)
		if r.Path != "" {
			gray.Printf("  %s", r.Path)
		}
		gray.Printf("  [%s, score %d]\n", r.Type, r.Score)
		fmt.Printf("  %s\n\n", r.Snippet)
	}
	return nil
}
