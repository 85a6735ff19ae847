package hwfifo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-gxip/gxip"
	"github.com/arloliu/go-gxip/internal/pool"
	"github.com/arloliu/go-gxip/logger"
)

// headerWords is the number of words preceding the payload.
const headerWords = 2

// Channel sends and receives whole messages over a Port.
//
// Send is safe for concurrent use. Receive is meant for a single listener goroutine;
// concurrent receivers are serialized.
type Channel struct {
	port    Port
	cfg     *ChannelConfig
	logger  logger.Logger
	metrics ChannelMetrics

	sendMu sync.Mutex
	recvMu sync.Mutex

	// partial is the message whose header has been consumed but whose payload is not
	// complete yet. Guarded by recvMu.
	partial    *partialMessage
	inProgress atomic.Bool
}

type partialMessage struct {
	typ   uint32
	count int
	read  int
	words []uint32
	// skip is set for oversized messages: the words are consumed and dropped.
	skip bool
}

// NewChannel creates a Channel over port and drains any words left queued by a
// previous run.
func NewChannel(port Port, opts ...ChannelOption) (*Channel, error) {
	if port == nil {
		return nil, errors.New("port is nil")
	}

	cfg, err := newChannelConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		port:   port,
		cfg:    cfg,
		logger: cfg.logger.With("component", "hwfifo"),
	}

	drained, err := c.drain()
	if err != nil {
		return nil, fmt.Errorf("drain stale words: %w", err)
	}
	if drained > 0 {
		c.logger.Info("drained stale fifo words", "words", drained)
	}

	return c, nil
}

func (c *Channel) drain() (int, error) {
	drained := 0
	for {
		level, err := c.port.FillLevel()
		if err != nil {
			return drained, err
		}
		if level == 0 {
			return drained, nil
		}

		for i := 0; i < level; i++ {
			if _, err := c.port.ReadWord(); err != nil {
				if errors.Is(err, ErrEmpty) {
					return drained, nil
				}
				return drained, err
			}
			drained++
			c.metrics.StaleWordCount.Add(1)
		}
	}
}

// Send writes one complete message. The type word, count word and payload words are
// emitted as one uninterrupted sequence.
func (c *Channel) Send(typ MsgType, data []byte) error {
	n := WordCount(len(data))
	if n > c.cfg.maxWords {
		return fmt.Errorf("%w: %d words, max %d", ErrOversized, n, c.cfg.maxWords)
	}

	bufp := pool.GetWords(headerWords + n)
	defer pool.PutWords(bufp)

	words := append(*bufp, uint32(typ), uint32(n)) //nolint:gosec // n bounded by maxWords
	words = PackWords(words, data)
	*bufp = words

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	for _, w := range words {
		if err := c.port.WriteWord(w); err != nil {
			c.metrics.incMsgErrCount()
			return fmt.Errorf("write fifo word: %w", err)
		}
	}
	c.metrics.incMsgSendCount()

	return nil
}

// SendPacket wraps a GXIP packet into a GXIPMsg message and sends it.
func (c *Channel) SendPacket(p *gxip.Packet) error {
	return c.Send(GXIPMsg, p.ToBytes())
}

// SendString sends NUL terminated diagnostic text.
func (c *Channel) SendString(s string) error {
	return c.Send(StringMsg, append([]byte(s), 0))
}

// Pending reports, without blocking, whether a complete message header is queued, or
// whether more words of a stalled message have arrived.
func (c *Channel) Pending() bool {
	ok, err := c.pending()
	if err != nil {
		c.logger.Debug("read fill level failed", "error", err)
	}

	return ok
}

func (c *Channel) pending() (bool, error) {
	level, err := c.port.FillLevel()
	if err != nil {
		return false, err
	}

	if c.inProgress.Load() {
		return level > 0, nil
	}

	return level >= headerWords, nil
}

// Receive waits up to timeout for the next message.
//
// The fill level is polled every poll interval. If no message header shows up in time,
// ErrTimeout is returned. Once a header has been read the payload words are awaited one
// by one, each bounded by the word stall timeout. A stalled message is kept: the error
// wraps ErrIncompleteMessage and the next Receive continues with the missing words, so
// late words are never taken for a new header.
func (c *Channel) Receive(ctx context.Context, timeout time.Duration) (*Message, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		ok, err := c.pending()
		if err != nil {
			return nil, fmt.Errorf("read fill level: %w", err)
		}
		if ok {
			return c.readMessage(ctx)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}

		if err := c.sleep(ctx, min(c.cfg.pollInterval, remaining)); err != nil {
			return nil, err
		}
	}
}

// Metrics returns the counters of the channel.
func (c *Channel) Metrics() *ChannelMetrics {
	return &c.metrics
}

// Close closes the underlying port.
func (c *Channel) Close() error {
	return c.port.Close()
}

func (c *Channel) readMessage(ctx context.Context) (*Message, error) {
	if c.partial == nil {
		p, err := c.readHeader()
		if err != nil {
			return nil, err
		}
		c.partial = p
		c.inProgress.Store(true)
	}

	p := c.partial
	for p.read < p.count {
		w, err := c.awaitWord(ctx)
		if err != nil {
			if errors.Is(err, ErrIncompleteMessage) {
				c.metrics.StallCount.Add(1)
			}
			return nil, fmt.Errorf("word %d of %d: %w", p.read, p.count, err)
		}
		p.read++
		if !p.skip {
			p.words = append(p.words, w)
		}
	}

	c.partial = nil
	c.inProgress.Store(false)

	if p.skip {
		c.metrics.incMsgErrCount()
		return nil, fmt.Errorf("%w: %d words, max %d", ErrOversized, p.count, c.cfg.maxWords)
	}
	c.metrics.incMsgRecvCount()

	return &Message{Type: MsgType(p.typ), Data: UnpackWords(p.words)}, nil
}

func (c *Channel) readHeader() (*partialMessage, error) {
	typ, err := c.port.ReadWord()
	if err != nil {
		return nil, fmt.Errorf("read message type: %w", err)
	}

	count, err := c.port.ReadWord()
	if err != nil {
		// the type word is gone; the stream can only be resynchronized by a drain
		c.metrics.incMsgErrCount()
		if n, derr := c.drain(); derr == nil && n > 0 {
			c.logger.Warn("dropped words after a torn header", "words", n)
		}
		return nil, fmt.Errorf("read word count: %w", err)
	}

	p := &partialMessage{typ: typ, count: int(count)}
	if p.count > c.cfg.maxWords {
		p.skip = true
		c.logger.Warn("skipping oversized message", "words", count, "max", c.cfg.maxWords)
	} else {
		p.words = make([]uint32, 0, p.count)
	}

	return p, nil
}

// awaitWord waits for one payload word to become available.
func (c *Channel) awaitWord(ctx context.Context) (uint32, error) {
	deadline := time.Now().Add(c.cfg.wordStallTimeout)
	for {
		level, err := c.port.FillLevel()
		if err != nil {
			return 0, err
		}
		if level > 0 {
			return c.port.ReadWord()
		}

		if time.Now().After(deadline) {
			return 0, ErrIncompleteMessage
		}

		if err := c.sleep(ctx, c.cfg.pollInterval); err != nil {
			return 0, err
		}
	}
}

func (c *Channel) sleep(ctx context.Context, d time.Duration) error {
	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
