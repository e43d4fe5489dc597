package rpc_test

import (
	"testing"

	"github.com/tahti-audio/tahti"
	"github.com/tahti-audio/tahti/rpc"
)

func TestSendReceive(t *testing.T) {
	receiver, err := rpc.Receiver()
	if err != nil {
		t.Fatalf("rpc.Receiver error: %v", err)
	}
	sender, err := rpc.Sender("127.0.0.1")
	if err != nil {
		t.Fatalf("rpc.Sender error: %v", err)
	}
	value := tahti.Position{Tick: 42, Bar: 2, Beat: 3, State: tahti.Playing, Frame: 96000}
	sender <- value
	valueGot := <-receiver
	if valueGot != value {
		t.Fatalf("received position %+v, sent %+v", valueGot, value)
	}
}
