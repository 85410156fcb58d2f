package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"

	apiclient "github.com/macdonc2/llm-app-template/pkg/api/client"
	"github.com/macdonc2/llm-app-template/pkg/config"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "login":
		err = commandLogin(args)
	case "me":
		err = commandMe(args)
	case "update":
		err = commandUpdate(args)
	case "admin":
		err = commandAdmin(args)
	case "rag":
		err = commandRAG(args)
	case "summarize":
		err = commandSummarize(args)
	case "agent":
		err = commandAgent(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	openaiKey := fs.String("openai-key", "", "OpenAI API key")
	tavilyKey := fs.String("tavily-key", "", "Tavily API key")
	firecrawlKey := fs.String("firecrawl-key", "", "Firecrawl API key")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}
	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := newClient(cfg, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := client.Register(ctx, apiclient.RegisterInput{
		Email:           *email,
		Password:        secret,
		OpenAIAPIKey:    *openaiKey,
		TavilyAPIKey:    *tavilyKey,
		FirecrawlAPIKey: *firecrawlKey,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s); an administrator must approve the account before login\n", user.Email, user.ID)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}
	secret, err := readPassword(*password)
	if err != nil {
		return err
	}

	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	client, err := newClient(cfg, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}
	cfg.AccessToken = token.AccessToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("login successful, token expires in %s\n", time.Duration(token.ExpiresIn)*time.Second)
	return nil
}

func commandMe(args []string) error {
	fs := flag.NewFlagSet("me", flag.ExitOnError)
	fs.Parse(args)

	client, token, err := authedClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := client.Me(ctx, token)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func commandUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	var input apiclient.UpdateInput
	fs.Func("email", "New email address", func(v string) error { input.Email = &v; return nil })
	fs.Func("password", "New password", func(v string) error { input.Password = &v; return nil })
	fs.Func("openai-key", "OpenAI API key (empty clears it)", func(v string) error { input.OpenAIAPIKey = &v; return nil })
	fs.Func("tavily-key", "Tavily API key (empty clears it)", func(v string) error { input.TavilyAPIKey = &v; return nil })
	fs.Func("firecrawl-key", "Firecrawl API key (empty clears it)", func(v string) error { input.FirecrawlAPIKey = &v; return nil })
	fs.Parse(args)

	if input == (apiclient.UpdateInput{}) {
		return errors.New("nothing to update")
	}
	client, token, err := authedClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := client.UpdateMe(ctx, token, input)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func commandAdmin(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ragctl admin [pending|users|approve|verify|ingest]")
	}
	client, token, err := authedClient(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sub, rest := args[0], args[1:]
	switch sub {
	case "pending":
		fs := flag.NewFlagSet("admin pending", flag.ExitOnError)
		limit := fs.Int("limit", 0, "Maximum number of users (server caps a page at 500)")
		offset := fs.Int("offset", 0, "Users to skip")
		fs.Parse(rest)
		users, err := client.PendingUsers(ctx, token, *limit, *offset)
		if err != nil {
			return err
		}
		printUsers(users)
		return nil
	case "users":
		fs := flag.NewFlagSet("admin users", flag.ExitOnError)
		limit := fs.Int("limit", 0, "Maximum number of users")
		offset := fs.Int("offset", 0, "Users to skip")
		fs.Parse(rest)
		users, err := client.ListUsers(ctx, token, *limit, *offset)
		if err != nil {
			return err
		}
		printUsers(users)
		return nil
	case "approve", "verify":
		if len(rest) == 0 || strings.TrimSpace(rest[0]) == "" {
			return fmt.Errorf("usage: ragctl admin %s <user-id>", sub)
		}
		action := client.Approve
		if sub == "verify" {
			action = client.Verify
		}
		user, err := action(ctx, token, rest[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\tactive=%t\tverified=%t\n", user.ID, user.IsActive, user.IsVerified)
		return nil
	case "ingest":
		if len(rest) == 0 {
			return errors.New("usage: ragctl admin ingest <file>...")
		}
		docs := make([]string, 0, len(rest))
		for _, path := range rest {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			docs = append(docs, string(data))
		}
		ids, err := client.Ingest(ctx, token, docs)
		if err != nil {
			return err
		}
		fmt.Printf("ingested %d documents: %v\n", len(ids), ids)
		return nil
	default:
		return fmt.Errorf("unknown admin command: %s", sub)
	}
}

func commandRAG(args []string) error {
	fs := flag.NewFlagSet("rag", flag.ExitOnError)
	topK := fs.Int("top-k", 0, "Number of passages to retrieve")
	fs.Parse(args)
	query, err := joinQuery(fs.Args())
	if err != nil {
		return err
	}

	client, token, err := authedClient(true)
	if err != nil {
		return err
	}
	answer, err := client.RAGQuery(context.Background(), token, query, *topK)
	if err != nil {
		return err
	}
	fmt.Println(answer.Answer)
	for i, c := range answer.Contexts {
		fmt.Printf("\n[%d] %s\n", i+1, c)
	}
	return nil
}

func commandSummarize(args []string) error {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	topK := fs.Int("top-k", 0, "Number of search results")
	fs.Parse(args)
	query, err := joinQuery(fs.Args())
	if err != nil {
		return err
	}

	client, token, err := authedClient(true)
	if err != nil {
		return err
	}
	summary, err := client.Summarize(context.Background(), token, query, *topK)
	if err != nil {
		return err
	}
	fmt.Printf("query: %s\n\n%s\n", summary.ExpandedQuery, summary.Summary)
	for i, c := range summary.Contexts {
		fmt.Printf("\n[%d] %s %s\n", i+1, c.Title, c.URL)
	}
	return nil
}

func commandAgent(args []string) error {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	fs.Parse(args)
	query, err := joinQuery(fs.Args())
	if err != nil {
		return err
	}

	client, token, err := authedClient(true)
	if err != nil {
		return err
	}
	response, err := client.Ask(context.Background(), token, query)
	if err != nil {
		return err
	}
	fmt.Println(response)
	return nil
}

func authedClient(long bool) (*apiclient.Client, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, "", errors.New("please login first using 'ragctl login'")
	}
	client, err := newClient(cfg, long)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

// newClient applies the env timeouts; long selects the agent budget.
func newClient(cfg cliConfig, long bool) (*apiclient.Client, error) {
	env := config.LoadCLIConfig()
	timeout := env.RequestTimeout
	if long {
		timeout = env.AgentTimeout
	}
	return apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(timeout))
}

// readPassword returns the flag value verbatim or prompts on the terminal.
// Secrets are never trimmed.
func readPassword(flagValue string) (string, error) {
	return readSecret(flagValue, func() ([]byte, error) {
		fmt.Print("Password: ")
		defer fmt.Print("\n")
		return term.ReadPassword(int(os.Stdin.Fd()))
	})
}

func readSecret(flagValue string, prompt func() ([]byte, error)) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	secret, err := prompt()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(secret) == 0 {
		return "", errors.New("a password is required")
	}
	return string(secret), nil
}

func joinQuery(args []string) (string, error) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return "", errors.New("a query is required")
	}
	return query, nil
}

func printUsers(users []apiclient.User) {
	for _, u := range users {
		fmt.Printf("%s\t%s\tactive=%t\tverified=%t\tsuperuser=%t\n", u.ID, u.Email, u.IsActive, u.IsVerified, u.IsSuperuser)
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func loadConfig() (cliConfig, error) {
	fallback := config.LoadCLIConfig().APIBaseURL
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: fallback}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = fallback
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "ragctl", "config.json"), nil
}

func printUsage() {
	fmt.Printf("ragctl %s\n\n", buildVersion)
	fmt.Print(`Usage:
	ragctl register --email user@example.com [--password secret] [--openai-key k] [--tavily-key k] [--firecrawl-key k] [--api http://localhost:8000]
	ragctl login --email user@example.com [--password secret] [--api http://localhost:8000]
	ragctl me
	ragctl update [--email e] [--password p] [--openai-key k] [--tavily-key k] [--firecrawl-key k]
	ragctl admin pending
	ragctl admin users [--limit N] [--offset N]
	ragctl admin approve <user-id>
	ragctl admin verify <user-id>
	ragctl admin ingest <file>...
	ragctl rag [--top-k N] <question>
	ragctl summarize [--top-k N] <query>
	ragctl agent <question>
	ragctl version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
