package messaging

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// DeployRequestHandler processes one decoded deploy request. A returned
// error triggers redelivery; malformed messages are terminated instead.
type DeployRequestHandler func(ctx context.Context, req DeployRequestMessage) error

// ConsumeDeployRequests wires a durable consumer on the deploy-request
// subject so deployments can be triggered by message as well as by HTTP.
func ConsumeDeployRequests(ctx context.Context, broker *NatsBroker, handle DeployRequestHandler) (jetstream.ConsumeContext, error) {
	stream, err := broker.EnsureStream(ctx, DeployStreamName, []string{"kintone.deploy.>"})
	if err != nil {
		return nil, err
	}

	consumer, err := broker.CreateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Name:          "deploy_request_consumer",
		Durable:       "deploy_request_consumer",
		FilterSubject: SubjectDeployRequest,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, err
	}

	return consumer.Consume(func(msg jetstream.Msg) {
		var req DeployRequestMessage
		if err := json.Unmarshal(msg.Data(), &req); err != nil {
			log.Error().Err(err).Msg("Malformed deploy request message, terminating")
			msg.Term()
			return
		}
		if req.AppID == "" {
			log.Error().Msg("Deploy request message without app_id, terminating")
			msg.Term()
			return
		}

		if err := handle(ctx, req); err != nil {
			log.Error().Err(err).Str("appID", req.AppID).Msg("Deploy request handling failed, requeueing")
			msg.Nak()
			return
		}
		msg.Ack()
	})
}
