package provider

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradedesk/internal/logging"
)

// PriceTick is one message from the price stream
type PriceTick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
}

// PriceStream maintains a websocket subscription to the provider's live price
// feed, reconnecting with a fixed interval when the connection drops.
type PriceStream struct {
	mu sync.RWMutex

	streamURL string
	symbol    string
	log       zerolog.Logger

	wsConn    *websocket.Conn
	isRunning bool
	stopChan  chan struct{}

	reconnectInterval time.Duration
	reconnects        int
	lastPrice         float64
	lastUpdateTime    time.Time

	onTick func(PriceTick)
}

// NewPriceStream creates a price stream for one symbol.
func NewPriceStream(streamURL, symbol string, reconnectInterval time.Duration, onTick func(PriceTick)) *PriceStream {
	if reconnectInterval <= 0 {
		reconnectInterval = 5 * time.Second
	}
	return &PriceStream{
		streamURL:         streamURL,
		symbol:            symbol,
		log:               logging.New("price-stream"),
		reconnectInterval: reconnectInterval,
		onTick:            onTick,
	}
}

// Start connects and begins delivering ticks to the callback. Safe to call
// once; a second call while running is a no-op.
func (ps *PriceStream) Start() error {
	ps.mu.Lock()
	if ps.isRunning {
		ps.mu.Unlock()
		return nil
	}
	ps.isRunning = true
	ps.stopChan = make(chan struct{})
	ps.mu.Unlock()

	if err := ps.connect(); err != nil {
		// The read loop retries; a failed first dial is not fatal
		ps.log.Warn().Err(err).Msg("Initial stream connection failed, will retry")
	}

	go ps.readLoop()
	return nil
}

// Stop closes the stream and stops reconnecting.
func (ps *PriceStream) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.isRunning {
		return
	}
	ps.isRunning = false
	close(ps.stopChan)
	if ps.wsConn != nil {
		ps.wsConn.Close()
		ps.wsConn = nil
	}
}

// LastPrice returns the most recent tick and whether one has arrived.
func (ps *PriceStream) LastPrice() (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.lastPrice, !ps.lastUpdateTime.IsZero()
}

func (ps *PriceStream) connect() error {
	endpoint := fmt.Sprintf("%s?symbol=%s", ps.streamURL, ps.symbol)

	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return fmt.Errorf("stream dial failed: %w", err)
	}

	ps.mu.Lock()
	ps.wsConn = conn
	ps.mu.Unlock()

	ps.log.Info().Str("symbol", ps.symbol).Msg("Price stream connected")
	return nil
}

func (ps *PriceStream) readLoop() {
	for {
		select {
		case <-ps.stopChan:
			return
		default:
		}

		ps.mu.RLock()
		conn := ps.wsConn
		ps.mu.RUnlock()

		if conn == nil {
			if !ps.waitReconnect() {
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			ps.mu.Lock()
			if ps.wsConn != nil {
				ps.wsConn.Close()
				ps.wsConn = nil
			}
			running := ps.isRunning
			ps.mu.Unlock()

			if !running {
				return
			}
			ps.log.Warn().Err(err).Msg("Price stream read failed, reconnecting")
			if !ps.waitReconnect() {
				return
			}
			continue
		}

		var tick PriceTick
		if err := json.Unmarshal(message, &tick); err != nil {
			ps.log.Warn().Err(err).Msg("Dropping malformed price tick")
			continue
		}

		ps.mu.Lock()
		ps.lastPrice = tick.Price
		ps.lastUpdateTime = time.Now()
		ps.mu.Unlock()

		if ps.onTick != nil {
			ps.onTick(tick)
		}
	}
}

// waitReconnect sleeps the reconnect interval then redials. Returns false when
// the stream was stopped while waiting.
func (ps *PriceStream) waitReconnect() bool {
	select {
	case <-ps.stopChan:
		return false
	case <-time.After(ps.reconnectInterval):
	}

	ps.mu.Lock()
	ps.reconnects++
	attempts := ps.reconnects
	ps.mu.Unlock()

	if err := ps.connect(); err != nil {
		ps.log.Warn().Err(err).Int("attempts", attempts).Msg("Stream reconnect failed")
	}
	return true
}
