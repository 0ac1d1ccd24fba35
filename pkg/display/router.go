// Package display routes the notices of a workflow run to their renderers:
// the console printer, a newline delimited JSON dump or both.
package display

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/agentic-research/pkg/helpers"
	"github.com/go-go-golems/agentic-research/pkg/reducer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const TopicNotices = "notices"

// Router carries notices from the workflow to the registered handlers.
// Publishing blocks until every handler acknowledged the notice, so
// notices are rendered in the order they were shown.
type Router struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type RouterOption func(*Router)

func WithLogger(logger watermill.LoggerAdapter) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) RouterOption {
	return func(r *Router) {
		if verbose {
			r.logger = helpers.NewBusLogger(log.Logger)
		}
	}
}

func NewRouter(options ...RouterOption) (*Router, error) {
	ret := &Router{
		logger: watermill.NopLogger{},
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = helpers.NewRunTagger(goPubSub)
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

func (r *Router) AddHandler(name string, f message.NoPublishHandlerFunc) {
	r.router.AddNoPublisherHandler(name, TopicNotices, r.Subscriber, f)
}

func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	if err := r.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close notice publisher")
	}
	if err := r.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close notice router")
	}
	return nil
}

// Display returns a reducer.Display that publishes notices on the router.
func (r *Router) Display() reducer.Display {
	return &publisherDisplay{publisher: r.Publisher}
}

type publisherDisplay struct {
	publisher message.Publisher
}

func (p *publisherDisplay) Show(ctx context.Context, n reducer.Notice) error {
	b, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to encode notice")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.SetContext(ctx)
	return p.publisher.Publish(TopicNotices, msg)
}

func decodeNotice(msg *message.Message) (reducer.Notice, error) {
	var n reducer.Notice
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return n, errors.Wrap(err, "failed to decode notice")
	}
	return n, nil
}
