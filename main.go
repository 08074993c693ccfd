package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"rkllm-chat-client/config"
	"rkllm-chat-client/handlers"
	"rkllm-chat-client/services"
)

func main() {
	os.Exit(run())
}

func usage(fs *pflag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "\nInteractive chat client for an RKLLM inference server.\n\n %s [flags]\n\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
}

// run returns the process exit code so that deferred cleanup always happens before exit.
func run() int {
	// A missing .env is normal; the process environment and defaults still apply.
	_ = godotenv.Load()

	cfg, cfgErr := config.LoadConfig()
	cfg.BindFlags(pflag.CommandLine)
	pflag.Usage = usage(pflag.CommandLine)
	pflag.Parse()

	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil {
			log.Fatalf("Could not load env file %s: %v", cfg.EnvFile, err)
		}
		// Rebuild from the enlarged environment; flags given on the command line still win.
		cfg, cfgErr = config.LoadConfig()
		fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
		fs.Usage = usage(fs)
		cfg.BindFlags(fs)
		if err := fs.Parse(os.Args[1:]); err != nil {
			log.Fatalf("Invalid flags: %v", err)
		}
	}
	if cfgErr != nil {
		log.Fatalf("Invalid environment: %v", cfgErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logFile, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("Could not open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TranscriptCommand() {
		return runTranscriptCommand(ctx, cfg)
	}

	shutdownTracing, err := services.InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return fail("Could not initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()

	httpClient := services.NewHTTPClient(cfg.RequestTimeout)

	opts := handlers.Options{
		SessionID: uuid.NewString(),
		FailFast:  cfg.FailFast,
	}

	var completer services.Completer
	switch cfg.Backend {
	case config.BackendOpenAI:
		completer = services.NewOpenAIService(cfg, httpClient)
		log.Printf("Using OpenAI-compatible backend at %s (model %s)", cfg.OpenAIBaseURL, cfg.OpenAIModel)
	default:
		rkllm := services.NewRKLLMService(cfg, httpClient)
		completer = rkllm
		log.Printf("Using RKLLM server at %s", cfg.ServerURL())
		pingRKLLM(ctx, rkllm)
	}
	opts.Budget = tokenBudget(cfg)

	if cfg.RedisAddr != "" {
		store, err := services.NewTranscriptStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: transcript disabled: %v", err)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					log.Printf("Error closing Redis connection: %v", err)
				}
			}()
			opts.Recorder = store
			log.Printf("Recording transcript for session %s", opts.SessionID)
		}
	}

	repl := handlers.NewREPL(os.Stdin, os.Stdout, completer, opts)
	if err := repl.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Println("Interrupted, exiting.")
			return 0
		}
		return fail("Chat failed: %v", err)
	}
	return 0
}

func runTranscriptCommand(ctx context.Context, cfg *config.Config) int {
	store, err := services.NewTranscriptStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return fail("Could not connect to Redis: %v", err)
	}
	defer store.Close()

	if err := handlers.RunTranscriptCommand(ctx, os.Stdout, store, cfg); err != nil {
		return fail("Transcript command failed: %v", err)
	}
	return 0
}

// tokenBudget returns nil unless the RKLLM backend is in use: MAX_CONTEXT_LEN and
// MAX_NEW_TOKENS describe the RKLLM server's model.
func tokenBudget(cfg *config.Config) *services.TokenBudget {
	if cfg.Backend != config.BackendRKLLM {
		return nil
	}
	counter, err := services.NewTiktokenCounter("cl100k_base")
	if err != nil {
		log.Printf("Warning: token budget check disabled: %v", err)
		return nil
	}
	return services.NewTokenBudget(counter, cfg.MaxContextLen, cfg.MaxNewTokens)
}

// fail reports the failure on stderr whatever the log destination is, and returns exit code 1.
func fail(format string, args ...interface{}) int {
	log.Printf(format, args...)
	if log.Writer() != io.Writer(os.Stderr) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	return 1
}

// pingRKLLM checks the server once; an unreachable server is reported but not fatal.
func pingRKLLM(ctx context.Context, svc *services.RKLLMService) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	status, err := svc.Ping(pingCtx)
	if err != nil {
		log.Printf("Warning: RKLLM server health check failed: %v", err)
		fmt.Fprintf(os.Stderr, "note: the RKLLM server is not answering yet (%v)\n", err)
		return
	}
	log.Printf("RKLLM server status: %s", status)
}

// setupLogging keeps the terminal for the conversation: logs go to LOG_FILE, to stderr
// with --debug, and nowhere otherwise.
func setupLogging(cfg *config.Config) (*os.File, error) {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		log.SetOutput(f)
		return f, nil
	case cfg.Debug:
		log.SetOutput(os.Stderr)
	default:
		log.SetOutput(io.Discard)
	}
	return nil, nil
}
