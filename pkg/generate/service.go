package generate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dmitrymomot/promptdesk/pkg/credits"
	"github.com/dmitrymomot/promptdesk/pkg/logger"
	"github.com/dmitrymomot/promptdesk/pkg/tiers"
)

// CreditCost is the price of one generation.
const CreditCost int64 = 1

// Config holds the OpenAI client and completion settings.
type Config struct {
	APIKey      string        `env:"OPENAI_API_KEY,required"`
	BaseURL     string        `env:"OPENAI_BASE_URL"`
	Model       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens   int           `env:"OPENAI_MAX_TOKENS" envDefault:"800"`
	Temperature float32       `env:"OPENAI_TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"OPENAI_TIMEOUT" envDefault:"45s"`
}

// NewClient builds an OpenAI client from cfg.
func NewClient(cfg Config) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// Completer is the chat completion call of *openai.Client.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Gate checks and charges credits around a generation. *credits.Ledger implements it.
type Gate interface {
	Remaining(ctx context.Context, userID uuid.UUID, tier tiers.Tier) (credits.Balance, error)
	Debit(ctx context.Context, userID uuid.UUID, tier tiers.Tier, action string, amount int64) (credits.DebitResult, error)
}

// Request is one generation call.
type Request struct {
	UserID uuid.UUID  `validate:"required"`
	Tier   tiers.Tier `validate:"required"`
	Tool   ToolID     `json:"tool" validate:"required"`
	Input  string     `json:"input" validate:"required,max=8000"`
	Tone   string     `json:"tone,omitempty" validate:"omitempty,max=40"`
}

// Response is the generated text and the usage it caused.
type Response struct {
	Tool        ToolID `json:"tool"`
	Output      string `json:"output"`
	Model       string `json:"model"`
	Charged     bool   `json:"charged"`      // false when the debit failed after the completion
	CreditsUsed int64  `json:"credits_used"` // usage after the debit, valid when Charged
	Tokens      int    `json:"tokens"`
}

// Service runs tools.
type Service struct {
	completer Completer
	gate      Gate
	validate  *validator.Validate
	cfg       Config
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires a completer and a credit gate.
func NewService(completer Completer, gate Gate, cfg Config, opts ...Option) *Service {
	if completer == nil {
		panic("generate: completer is required")
	}
	if gate == nil {
		panic("generate: credit gate is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	s := &Service{
		completer: completer,
		gate:      gate,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		log:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("generate"))
	return s
}

// Generate runs the tool when the user has at least CreditCost left and debits the
// credit only after a successful completion. A failed debit does not fail the request;
// it is logged and reported through Response.Charged.
func (s *Service) Generate(ctx context.Context, req Request) (Response, error) {
	req.Input = strings.TrimSpace(req.Input)
	if err := s.validate.Struct(req); err != nil {
		return Response{}, errors.Join(ErrInvalidRequest, err)
	}
	tool, ok := LookupTool(req.Tool)
	if !ok {
		return Response{}, ErrUnknownTool
	}

	balance, err := s.gate.Remaining(ctx, req.UserID, req.Tier)
	if err != nil {
		return Response{}, err
	}
	if balance.Remaining < CreditCost {
		return Response{}, ErrInsufficientCredits
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		User:        req.UserID.String(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: tool.systemPrompt(req.Tone)},
			{Role: openai.ChatMessageRoleUser, Content: req.Input},
		},
	})
	if err != nil {
		s.log.ErrorContext(ctx, "completion failed",
			logger.UserID(req.UserID),
			slog.String("tool", string(tool.ID)),
			logger.Error(err))
		return Response{}, errors.Join(ErrCompletionFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Response{}, ErrEmptyCompletion
	}

	out := Response{
		Tool:   tool.ID,
		Output: resp.Choices[0].Message.Content,
		Model:  resp.Model,
		Tokens: resp.Usage.TotalTokens,
	}

	// the completion is delivered even when the debit fails; ctx may already be past its deadline
	debit, err := s.gate.Debit(context.WithoutCancel(ctx), req.UserID, req.Tier, string(tool.ID), CreditCost)
	switch {
	case err != nil:
		s.log.ErrorContext(ctx, "failed to debit generation",
			logger.UserID(req.UserID), logger.Tier(string(req.Tier)), logger.Error(err))
	case !debit.OK():
		s.log.WarnContext(ctx, "generation not charged",
			logger.UserID(req.UserID), logger.Tier(string(req.Tier)), logger.Error(debit.Err))
	default:
		out.Charged = true
		out.CreditsUsed = debit.Used
	}

	s.log.InfoContext(ctx, "generation completed",
		logger.UserID(req.UserID),
		logger.Tier(string(req.Tier)),
		slog.String("tool", string(tool.ID)),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Bool("charged", out.Charged),
		logger.Duration(time.Since(start)))

	return out, nil
}
