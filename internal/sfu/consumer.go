package sfu

import (
	"sync"

	"github.com/peppoasap/InVeritas/internal/domain"
)

// consumer is the sending endpoint of one forwarded track, webrtc or
// plain. It holds the relay output as an explicit lease; Close releases
// it exactly once.
type consumer struct {
	id    string
	kind  domain.MediaKind
	info  domain.ConsumerInfo
	relay *relay
	out   *relayOutput
	stop  func()

	once sync.Once
}

func (c *consumer) ID() string                { return c.id }
func (c *consumer) Kind() domain.MediaKind    { return c.kind }
func (c *consumer) Info() domain.ConsumerInfo { return c.info }

// Resume starts forwarding on a consumer that was created paused.
func (c *consumer) Resume() error {
	if c.out.getState() == outputPaused {
		c.out.setState(outputLive)
	}
	return nil
}

func (c *consumer) Close() error {
	c.once.Do(func() {
		c.relay.detach(c.id)
		if c.stop != nil {
			c.stop()
		}
	})
	return nil
}
