package cmd

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"golang-stockbot/internal/delivery/telegram"
	"golang-stockbot/pkg/logger"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"gopkg.in/telebot.v3"
)

type lambdaHandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func runLambda(appDep *AppDependency, handler *telegram.TelegramBotHandler) {
	handler.Start()
	appDep.log.Info("Starting Lambda handler")
	lambda.Start(newLambdaHandler(appDep.log, handler.ProcessUpdate))
}

// newLambdaHandler always answers 200 so Telegram does not redeliver updates
// the bot cannot use.
func newLambdaHandler(log *logger.Logger, process func(telebot.Update)) lambdaHandlerFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		ok := events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "OK"}

		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				log.WarnContext(ctx, "Failed to decode base64 body", logger.ErrorField(err))
				return ok, nil
			}
			body = decoded
		}

		var update telebot.Update
		if err := json.Unmarshal(body, &update); err != nil {
			log.WarnContext(ctx, "Ignoring request without a valid update", logger.ErrorField(err))
			return ok, nil
		}
		if update.Message == nil {
			log.DebugContext(ctx, "Ignoring non-message update", logger.IntField("update_id", update.ID))
			return ok, nil
		}

		process(update)
		return ok, nil
	}
}
