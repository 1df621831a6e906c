package deployment

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
	ModeLambda  Mode = "lambda"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePolling:
		return ModePolling, nil
	case ModeWebhook:
		return ModeWebhook, nil
	case ModeLambda, "serverless":
		return ModeLambda, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", s)
	}
}

// DetectMode guesses how the bot is hosted from well-known platform
// variables. Lambda wins over webhook, webhook over polling.
func DetectMode(lookup LookupFunc) Mode {
	isSet := func(key string) bool {
		_, ok := lookup(key)
		return ok
	}
	equals := func(key, want string) bool {
		v, ok := lookup(key)
		return ok && strings.EqualFold(v, want)
	}

	if isSet("AWS_LAMBDA_FUNCTION_NAME") || isSet("LAMBDA_RUNTIME_API") || equals("LAMBDA_MODE", "true") {
		return ModeLambda
	}

	if isSet("RAILWAY_ENVIRONMENT") || isSet("HEROKU_APP_NAME") || isSet("VERCEL") {
		return ModeWebhook
	}

	for _, key := range []string{"NODE_ENV", "ENVIRONMENT", "DEPLOYMENT_ENV"} {
		if equals(key, "production") {
			return ModeWebhook
		}
	}

	if isSet("PORT") && isSet("WEBHOOK_URL") {
		return ModeWebhook
	}

	if equals("WEBHOOK_MODE", "true") {
		return ModeWebhook
	}

	return ModePolling
}

// Resolve prefers an explicit mode and falls back to detection.
func Resolve(explicit string, lookup LookupFunc) (Mode, error) {
	if strings.TrimSpace(explicit) == "" {
		return DetectMode(lookup), nil
	}
	return ParseMode(explicit)
}
