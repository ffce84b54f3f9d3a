package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type ProviderConfig struct {
	Kind           string
	From           From
	SMTP           SMTPConfig
	SendGridAPIKey string
	AWSRegion      string
}

// NewProvider builds the provider named by cfg.Kind.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "log":
		return NewLogProvider(logger), nil
	case "smtp":
		cfg.SMTP.From = cfg.From
		return NewSMTPProvider(cfg.SMTP), nil
	case "sendgrid":
		return NewSendGridProvider(cfg.SendGridAPIKey, cfg.From)
	case "ses":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewSESProvider(sesv2.NewFromConfig(awsCfg), cfg.From), nil
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.Kind)
	}
}
