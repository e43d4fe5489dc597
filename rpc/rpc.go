// Package rpc forwards the transport position to another process, so that
// e.g. a visualizer can follow the playhead of a tahti player over the
// network.
package rpc

import (
	"fmt"
	"net"
	"net/http"
	"net/rpc"

	"github.com/sirupsen/logrus"

	"github.com/tahti-audio/tahti"
)

type PositionServer struct {
	channel chan tahti.Position
}

func (s *PositionServer) Sync(pos tahti.Position, reply *int) error {
	select {
	case s.channel <- pos:
	default:
	}
	return nil
}

// Receiver starts listening on :31337 and returns a channel of positions
// reported by a remote Sender. The channel is closed when serving stops.
func Receiver() (<-chan tahti.Position, error) {
	c := make(chan tahti.Position, 1)
	server := &PositionServer{channel: c}
	rpc.Register(server)
	rpc.HandleHTTP()
	l, err := net.Listen("tcp", ":31337")
	if err != nil {
		return nil, fmt.Errorf("net.Listen failed: %w", err)
	}
	go func() {
		defer close(c)
		http.Serve(l, nil)
	}()
	return c, nil
}

// Sender dials a Receiver at serverAddress and returns a channel; every
// position written to it is forwarded to the remote end. Closing the channel
// stops the forwarding.
func Sender(serverAddress string) (chan<- tahti.Position, error) {
	c := make(chan tahti.Position, 256)
	client, err := rpc.DialHTTP("tcp", serverAddress+":31337")
	if err != nil {
		return nil, fmt.Errorf("rpc.DialHTTP failed: %w", err)
	}
	go func() {
		for msg := range c {
			var reply int
			if err := client.Call("PositionServer.Sync", msg, &reply); err != nil {
				logrus.WithError(err).Error("position sync call failed")
				return
			}
		}
	}()
	return c, nil
}
