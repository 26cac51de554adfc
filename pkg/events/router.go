package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Publisher is what the turn orchestrator needs to report progress.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Router wires a watermill publisher/subscriber pair and a message router.
// By default both sides are an in-process go channel.
type Router struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	router     *message.Router
	verbose    bool
}

var _ Publisher = &Router{}

type RouterOption func(*Router)

func WithPublisher(p message.Publisher) RouterOption {
	return func(r *Router) { r.Publisher = p }
}

func WithSubscriber(s message.Subscriber) RouterOption {
	return func(r *Router) { r.Subscriber = s }
}

func WithVerbose(verbose bool) RouterOption {
	return func(r *Router) { r.verbose = verbose }
}

func NewRouter(options ...RouterOption) (*Router, error) {
	ret := &Router{logger: NewWatermillLogger(log.Logger)}
	for _, o := range options {
		o(ret)
	}
	if ret.Publisher == nil || ret.Subscriber == nil {
		goPubSub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = goPubSub
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goPubSub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create watermill router")
	}
	ret.router = router
	return ret, nil
}

// AddHandler registers a consumer for topic. Handlers must Ack the messages they handle.
func (r *Router) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	r.router.AddNoPublisherHandler(name, topic, r.Subscriber, f)
}

// Run blocks until ctx is canceled or the router is closed.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// RunHandlers starts handlers added after Run was called.
func (r *Router) RunHandlers(ctx context.Context) error {
	return r.router.RunHandlers(ctx)
}

func (r *Router) Publish(ctx context.Context, e Event) error {
	msg, err := e.ToMessage()
	if err != nil {
		return err
	}
	msg.SetContext(ctx)
	if r.verbose {
		log.Debug().Str("component", "events").
			Str("type", string(e.Type)).
			Str("job_id", e.JobID).
			Str("status", e.Status).
			Msg("publishing event")
	}
	return r.Publisher.Publish(TopicTurns, msg)
}

func (r *Router) Close() error {
	var ret error
	if err := r.router.Close(); err != nil {
		ret = errors.Wrap(err, "close router")
	}
	if err := r.Publisher.Close(); err != nil && ret == nil {
		ret = errors.Wrap(err, "close publisher")
	}
	if any(r.Subscriber) != any(r.Publisher) {
		if err := r.Subscriber.Close(); err != nil && ret == nil {
			ret = errors.Wrap(err, "close subscriber")
		}
	}
	return ret
}
