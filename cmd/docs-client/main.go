// Docs command line client
//
// Talks to a docs-web backend:
// - session login with a saved token
// - self-registration
// - file preview and translation with download to local disk or S3
// - admin review of registration requests
//
// Sub-commands:
//
//	docs-client login                          Log in and save the session token
//	docs-client logout                         End the session and delete the token
//	docs-client register -username u -email e  Submit a registration request
//	docs-client files <doc-id> <file-id>       Show a file and its siblings
//	docs-client languages <doc-id> <file-id>   List translation languages
//	docs-client translate -from zh -to en <doc-id> <file-id>
//	docs-client registrations list|approve|reject
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/term"

	"github.com/docsweb/docs-client/internal/config"
	"github.com/docsweb/docs-client/internal/events"
	"github.com/docsweb/docs-client/internal/logging"
	"github.com/docsweb/docs-client/internal/metrics"
	"github.com/docsweb/docs-client/pkg/client"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "login":
		cmdLogin(args)
	case "logout":
		cmdLogout(args)
	case "register":
		cmdRegister(args)
	case "files":
		cmdFiles(args)
	case "languages":
		cmdLanguages(args)
	case "translate":
		cmdTranslate(args)
	case "registrations":
		cmdRegistrations(args)
	case "help", "-h", "-help", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Docs client

Usage: docs-client <command> [flags] [args]

Commands:
  login                               Log in and save the session token
  logout                              End the session and delete the saved token
  register                            Submit a registration request
  files <doc-id> <file-id>            Show a file, its siblings and capabilities
  languages <doc-id> <file-id>        List the languages a file can be translated to
  translate <doc-id> <file-id>        Translate a file and store the result
  registrations list                  List registration requests (admin)
  registrations approve <id>          Approve a registration request (admin)
  registrations reject <id>           Reject a registration request (admin)

Common flags:
  -env <file>     Environment file (default: .env)
  -server <url>   Server URL (default: DOCS_URL or http://localhost:8080/docs-web)

Environment:
  DOCS_URL, DOCS_TOKEN, HTTP_TIMEOUT, LOG_LEVEL, LOG_FORMAT, METRICS_ADDR,
  POLL_INTERVAL, CONFIG_CACHE_TTL, CONFIG_CACHE_SIZE, DOWNLOAD_BACKEND,
  DOWNLOAD_DIR, S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY, S3_REGION`)
}

// app holds what every command needs once flags are parsed.
type app struct {
	cfg    *config.Config
	api    *client.Client
	events *events.Broadcaster
}

// commonFlags registers the flags shared by every command.
type commonFlags struct {
	envFile string
	server  string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.envFile, "env", ".env", "Environment file")
	fs.StringVar(&cf.server, "server", "", "Server URL")
	return cf
}

// setup loads configuration, starts logging and the optional metrics
// endpoint and builds the API client with the saved session, if any.
func setup(cf *commonFlags) *app {
	cfg, err := config.Load(cf.envFile)
	if err != nil {
		fatalf("Error: %v", err)
	}
	if cf.server != "" {
		cfg.ServerURL = strings.TrimSuffix(cf.server, "/")
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fatalf("Error initializing logger: %v", err)
	}

	token := cfg.AuthToken
	if token == "" {
		if tf, err := client.LoadToken(client.TokenFilePath()); err == nil && tf.Server == cfg.ServerURL {
			token = tf.Token
			logging.Debug("using saved token",
				logging.String("username", tf.Username),
				logging.String("server", tf.Server))
		}
	}

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr)
	}

	return &app{
		cfg: cfg,
		api: client.New(client.Config{
			BaseURL:         cfg.ServerURL,
			Timeout:         cfg.HTTPTimeout,
			AuthToken:       token,
			ConfigCacheTTL:  cfg.ConfigCacheTTL,
			ConfigCacheSize: cfg.ConfigCacheSize,
		}),
		events: events.NewBroadcaster(),
	}
}

func startMetricsServer(addr string) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("metrics endpoint listening", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("metrics server failed", logging.Err(err))
		}
	}()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cf := addCommonFlags(fs)
	remember := fs.Bool("remember", true, "Ask for a long-lived session")
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()
	ctx, cancel := signalContext()
	defer cancel()

	username := prompt("Username: ")
	password := promptPassword("Password: ")

	token, err := a.api.Login(ctx, username, password, *remember)
	if err != nil {
		fatalf("Error: %s", client.MessageOr(err, err.Error()))
	}

	tf := &client.TokenFile{Token: token, Server: a.api.BaseURL(), Username: username}
	if err := client.SaveToken(client.TokenFilePath(), tf); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save token: %v\n", err)
	}
	fmt.Printf("Login successful! Logged in as %s. Token saved to %s\n", username, client.TokenFilePath())
}

func cmdLogout(args []string) {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	a := setup(cf)
	defer logging.Sync()

	if a.api.AuthToken() == "" {
		fatalf("No saved token found.")
	}
	if err := a.api.Logout(context.Background()); err != nil {
		logging.Debug("server logout failed, session may already be gone", logging.Err(err))
	}
	if err := client.DeleteToken(client.TokenFilePath()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to delete token file: %v\n", err)
	}
	fmt.Println("Logged out successfully.")
}

func prompt(label string) string {
	fmt.Print(label)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line)
}

func promptPassword(label string) string {
	fmt.Print(label)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fatalf("Error reading password: %v", err)
	}
	return string(b)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	logging.Sync()
	os.Exit(1)
}
