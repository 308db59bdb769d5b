package x11

import (
	"github.com/BurntSushi/xgb"
)

// Delivery is one item read off the connection: an event or an
// asynchronous error from an unchecked request.
type Delivery struct {
	Event xgb.Event
	Err   xgb.Error
}

// Pump reads the connection on its own goroutine. The channel is closed
// when the connection goes away.
func (c *Connection) Pump(buffer int) <-chan Delivery {
	out := make(chan Delivery, buffer)
	conn := c.Conn()
	go func() {
		defer close(out)
		for {
			ev, err := conn.WaitForEvent()
			if ev == nil && err == nil {
				return
			}
			out <- Delivery{Event: ev, Err: err}
		}
	}()
	return out
}
