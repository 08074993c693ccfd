package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	DefaultRKLLMHost = "192.168.0.196"
	DefaultRKLLMPort = "31337"

	DefaultPromptTextPrefix  = "<|im_start|>system You are a helpful assistant. <|im_end|> <|im_start|>user "
	DefaultPromptTextPostfix = "<|im_end|><|im_start|>assistant "

	BackendRKLLM  = "rkllm"
	BackendOpenAI = "openai"
)

type Config struct {
	RKLLMHost         string
	RKLLMPort         string
	PromptTextPrefix  string
	PromptTextPostfix string
	Backend           string
	OpenAIBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	RequestTimeout    time.Duration
	MaxContextLen     int
	MaxNewTokens      int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	OTLPEndpoint      string
	LogFile           string
	Debug             bool
	FailFast          bool
	EnvFile           string

	// One-shot transcript commands; each prints its result and exits instead of starting the REPL.
	ListSessions    bool
	ShowTranscript  string
	ClearTranscript string
}

// LoadConfig reads the environment. Values that are set but cannot be parsed are errors.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RKLLMHost:         os.Getenv("RKLLM_HOST"),
		RKLLMPort:         os.Getenv("RKLLM_PORT"),
		PromptTextPrefix:  os.Getenv("PROMPT_TEXT_PREFIX"),
		PromptTextPostfix: os.Getenv("PROMPT_TEXT_POSTFIX"),
		Backend:           strings.ToLower(os.Getenv("BACKEND")),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		MaxContextLen:     512,
		MaxNewTokens:      256,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogFile:           os.Getenv("LOG_FILE"),
	}

	if cfg.RKLLMHost == "" {
		cfg.RKLLMHost = DefaultRKLLMHost
	}
	if cfg.RKLLMPort == "" {
		cfg.RKLLMPort = DefaultRKLLMPort
	}
	// An empty prefix or postfix is a legitimate template, so only unset variables fall back.
	if _, ok := os.LookupEnv("PROMPT_TEXT_PREFIX"); !ok {
		cfg.PromptTextPrefix = DefaultPromptTextPrefix
	}
	if _, ok := os.LookupEnv("PROMPT_TEXT_POSTFIX"); !ok {
		cfg.PromptTextPostfix = DefaultPromptTextPostfix
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendRKLLM
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "http://localhost:11434/v1"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "qwen2.5"
	}

	var errs []error
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err))
		} else {
			cfg.RequestTimeout = d
		}
	}
	for key, dst := range map[string]*int{
		"MAX_CONTEXT_LEN": &cfg.MaxContextLen,
		"MAX_NEW_TOKENS":  &cfg.MaxNewTokens,
		"REDIS_DB":        &cfg.RedisDB,
	} {
		if err := envInt(key, dst); err != nil {
			errs = append(errs, err)
		}
	}
	for key, dst := range map[string]*bool{
		"DEBUG":     &cfg.Debug,
		"FAIL_FAST": &cfg.FailFast,
	} {
		if err := envBool(key, dst); err != nil {
			errs = append(errs, err)
		}
	}

	return cfg, errors.Join(errs...)
}

// BindFlags registers command-line overrides on fs. Values already in cfg act as flag defaults,
// so flags win over the environment only when given.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.RKLLMHost, "host", c.RKLLMHost, "RKLLM server host")
	fs.StringVar(&c.RKLLMPort, "port", c.RKLLMPort, "RKLLM server port")
	fs.StringVar(&c.Backend, "backend", c.Backend, "completion backend (rkllm or openai)")
	fs.StringVar(&c.EnvFile, "env-file", c.EnvFile, "additional .env file to load")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "write logs and request dumps to stderr")
	fs.BoolVar(&c.FailFast, "fail-fast", c.FailFast, "exit on the first failed request instead of printing the error")
	fs.BoolVar(&c.ListSessions, "list-sessions", c.ListSessions, "list recorded transcript sessions and exit")
	fs.StringVar(&c.ShowTranscript, "show-transcript", c.ShowTranscript, "print the transcript of a session and exit")
	fs.StringVar(&c.ClearTranscript, "clear-transcript", c.ClearTranscript, "delete the transcript of a session and exit")
}

// TranscriptCommand reports whether a one-shot transcript command was requested.
func (c *Config) TranscriptCommand() bool {
	return c.ListSessions || c.ShowTranscript != "" || c.ClearTranscript != ""
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRKLLM, BackendOpenAI:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendRKLLM, BackendOpenAI)
	}
	if c.RKLLMHost == "" || c.RKLLMPort == "" {
		return fmt.Errorf("RKLLM host and port must not be empty")
	}
	if _, err := strconv.Atoi(c.RKLLMPort); err != nil {
		return fmt.Errorf("invalid RKLLM port %q: %w", c.RKLLMPort, err)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	if c.MaxContextLen <= 0 {
		return fmt.Errorf("MAX_CONTEXT_LEN must be positive, got %d", c.MaxContextLen)
	}
	if c.MaxNewTokens < 0 || c.MaxNewTokens >= c.MaxContextLen {
		return fmt.Errorf("MAX_NEW_TOKENS must be between 0 and MAX_CONTEXT_LEN (%d), got %d", c.MaxContextLen, c.MaxNewTokens)
	}
	if c.TranscriptCommand() && c.RedisAddr == "" {
		return fmt.Errorf("transcript commands need REDIS_ADDR")
	}
	return nil
}

// ServerURL is the address the prompt is POSTed to, always with a trailing slash.
func (c *Config) ServerURL() string {
	return "http://" + net.JoinHostPort(c.RKLLMHost, c.RKLLMPort) + "/"
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}
