package main

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/mikandrzej/wiwik-app-server/internal/ingest"
)

// handleFunc zpracuje jednu zprávu. V produkci je to Pipeline.Handle.
type handleFunc func(ctx context.Context, topic string, payload []byte) ingest.Outcome

// subscriber přihlásí odběr po každém (re)connectu a zprávy předává pipeline.
//
// Paho volá handler pro jeden odběr postupně (OrderMatters), takže
// pipeline zpracuje zprávu celou, než dostane další.
type subscriber struct {
	topics map[string]byte
	handle handleFunc
	logger zerolog.Logger
}

// onConnect je OnConnectHandler. Po výpadku brokera se odběr obnoví sám.
func (s *subscriber) onConnect(c mqtt.Client) {
	token := c.SubscribeMultiple(s.topics, s.onMessage)
	if token.Wait() && token.Error() != nil {
		s.logger.Error().Err(token.Error()).Interface("topics", s.topics).Msg("Subscribe selhal")
		return
	}
	s.logger.Info().Interface("topics", s.topics).Msg("Poslouchám na topicích")
}

func (s *subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// Ingestion nemá timeout ani zrušení, zpráva se vždy dokončí.
	s.handle(context.Background(), msg.Topic(), msg.Payload())
}
