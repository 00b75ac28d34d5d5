package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"dinner-chat/handler"
	"dinner-chat/internal/config"
	"dinner-chat/internal/credential"
	"dinner-chat/internal/integrations/openai"
	"dinner-chat/internal/integrations/paramstore"
	"dinner-chat/internal/integrations/tokenizer"
	"dinner-chat/internal/repository"
	"dinner-chat/internal/usecase"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	service *usecase.ChatService
	archive *repository.Client
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newApp builds the chat service from cfg. AWS clients are only created when
// a parameter name or an archive table is configured.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	// ---- Credential (read once) ----
	loader := credential.Loader{Values: cfg.APIKeyCandidates(), ParamName: cfg.OpenAIKeyParam}
	if cfg.OpenAIKeyParam != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		getter, err := paramstore.New(awsssm.NewFromConfig(c))
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		loader.Getter = getter
	}
	apiKey, source, err := loader.Load(ctx)
	if err != nil {
		logger.Warn("api key lookup failed", "err", err)
	}
	if apiKey == "" {
		logger.Warn("api key not configured; sends will fail until it is set")
	} else {
		logger.Info("api key loaded", "source", source)
	}

	// ---- Clients ----
	llm := openai.NewClient(apiKey,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.OpenAITimeout}),
	)

	opts := []usecase.ServiceOption{
		usecase.WithLogger(logger),
		usecase.WithMaxSessions(cfg.MaxSessions),
	}
	if counter, err := tokenizer.New(); err != nil {
		logger.Warn("token counter unavailable", "err", err)
	} else {
		opts = append(opts, usecase.WithTokenCounter(counter))
	}

	var archive *repository.Client
	if cfg.ArchiveTable != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		archive, err = repository.New(awsdynamodb.NewFromConfig(c), cfg.ArchiveTable)
		if err != nil {
			return nil, fmt.Errorf("create archive client: %w", err)
		}
		opts = append(opts, usecase.WithArchive(archive))
		logger.Info("exchange archive enabled", "table", cfg.ArchiveTable)
	}

	service, err := usecase.NewChatService(llm, cfg.Chat, opts...)
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}
	return &app{cfg: cfg, logger: logger, service: service, archive: archive}, nil
}

func (a *app) handler() (*handler.Handler, error) {
	h, err := handler.NewHandler(a.service, handler.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}
	return h, nil
}

var errArchiveDisabled = errors.New("ARCHIVE_TABLE is not set")
