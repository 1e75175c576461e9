package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	eventTypeMessage = "message"

	readTimeout      = 90 * time.Second
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

type eventEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// EventListener subscribes to the channel gateway's websocket event
// stream and feeds inbound message events to a handler. It reconnects
// with exponential backoff when the stream drops.
type EventListener struct {
	url     string
	apiKey  string
	handler MessageHandler
	logger  *logrus.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewEventListener(url, apiKey string, handler MessageHandler, logger *logrus.Logger) *EventListener {
	return &EventListener{
		url:     url,
		apiKey:  apiKey,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the background listen loop.
func (l *EventListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("event listener is already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.listenLoop()

	l.logger.WithField("url", l.url).Info("Channel event listener started")
	return nil
}

// Stop gracefully stops the listener.
func (l *EventListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}

	l.cancel()
	l.wg.Wait()
	l.running = false
	l.logger.Info("Channel event listener stopped")
}

func (l *EventListener) listenLoop() {
	defer l.wg.Done()

	backoff := reconnectInitial
	for {
		if l.ctx.Err() != nil {
			return
		}

		err := l.listenOnce()
		if l.ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.WithError(err).Warn("Channel event stream disconnected, reconnecting")
		}

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
		}
	}
}

func (l *EventListener) listenOnce() error {
	opts := &websocket.DialOptions{}
	if l.apiKey != "" {
		opts.HTTPHeader = http.Header{"X-Api-Key": []string{l.apiKey}}
	}

	conn, _, err := websocket.Dial(l.ctx, l.url, opts)
	if err != nil {
		return fmt.Errorf("failed to dial event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	l.logger.Debug("Channel event stream connected")

	for {
		readCtx, cancel := context.WithTimeout(l.ctx, readTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		l.dispatchEvent(data)
	}
}

func (l *EventListener) dispatchEvent(data []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		l.logger.WithError(err).Warn("Discarding malformed channel event")
		return
	}

	if envelope.Event != eventTypeMessage {
		l.logger.WithField("event", envelope.Event).Debug("Ignoring channel event")
		return
	}

	var event MessageEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		l.logger.WithError(err).Warn("Discarding malformed message event payload")
		return
	}

	if err := l.handler.HandleMessage(l.ctx, &event); err != nil {
		l.logger.WithError(err).Error("Failed to handle inbound message event")
	}
}
