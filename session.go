package olsync

import (
	"net/http"
	"net/url"
	"time"

	"github.com/olsync/olsync/internal/codec"
	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/channel/gorillaws"
	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/logger"
	"github.com/olsync/olsync/pkg/reconnect"
	"github.com/olsync/olsync/pkg/remote"
)

// Session identifies a user on a server.
type Session struct {
	// ServerName is a display name, e.g. "overleaf".
	ServerName string `mapstructure:"server_name" yaml:"server_name"`
	// BaseURL is the server origin, e.g. https://www.overleaf.com.
	BaseURL  string          `mapstructure:"base_url" yaml:"base_url"`
	UserID   string          `mapstructure:"user_id" yaml:"user_id"`
	Identity remote.Identity `mapstructure:"identity" yaml:"identity"`
}

// Header is the handshake header carrying the session's credentials.
func (s Session) Header() http.Header {
	h := http.Header{}
	if s.Identity.Cookies != "" {
		h.Set("Cookie", s.Identity.Cookies)
	}
	if s.Identity.CSRFToken != "" {
		h.Set("X-Csrf-Token", s.Identity.CSRFToken)
	}
	return h
}

// ChannelFactory makes the channel for one join attempt.
type ChannelFactory func(scheme reconnect.Scheme, projectID string) (channel.Channel, error)

type config struct {
	logger      logger.Logger
	remote      remote.API
	newChannel  ChannelFactory
	retryer     reconnect.Retryer
	maxRetries  int
	emitTimeout time.Duration
	codec       codec.Codec
}

type Option func(*config)

func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithRemote replaces the HTTP API client.
func WithRemote(api remote.API) Option {
	return func(c *config) { c.remote = api }
}

// WithChannelFactory replaces the websocket channel.
func WithChannelFactory(f ChannelFactory) Option {
	return func(c *config) { c.newChannel = f }
}

// WithRetryer spaces join attempts. Nil retries immediately.
func WithRetryer(r reconnect.Retryer) Option {
	return func(c *config) { c.retryer = r }
}

// WithMaxRetries sets the number of consecutive join failures that ends
// in ErrConnectionLost.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithEmitTimeout bounds each request over the channel.
func WithEmitTimeout(d time.Duration) Option {
	return func(c *config) { c.emitTimeout = d }
}

// WithCodec selects the channel's wire codec. JSON is the default.
func WithCodec(cd codec.Codec) Option {
	return func(c *config) { c.codec = cd }
}

func defaultConfig() *config {
	return &config{
		logger:      logger.Nop(),
		retryer:     reconnect.NewExponentialBackoffRetryer(),
		maxRetries:  constants.MaxJoinRetries,
		emitTimeout: constants.DefaultEmitTimeout,
		codec:       codec.JSON(),
	}
}

// websocketFactory dials the session's server with gorillaws.
// SchemeV2 names the project in the connect query.
func websocketFactory(sess Session, cfg *config) ChannelFactory {
	return func(scheme reconnect.Scheme, projectID string) (channel.Channel, error) {
		var q url.Values
		if scheme == reconnect.SchemeV2 {
			q = url.Values{"projectId": {projectID}}
		}
		conn := gorillaws.New(&gorillaws.Config{
			BaseURL: sess.BaseURL,
			Codec:   cfg.codec,
			Header:  sess.Header(),
			Query:   q,
			Logger:  cfg.logger,
		})
		conn.SetTimeOut(cfg.emitTimeout)
		return conn, nil
	}
}
