package mq

import (
	"context"
	"testing"
)

func TestConnection_NilBeforeInit(t *testing.T) {
	if Connection() != nil {
		t.Fatal("connection should be nil before Init")
	}
}

func TestConsume_RequiresConnection(t *testing.T) {
	err := Consume(context.Background(), ConsumeOptions{Queue: "goal.events"})
	if err == nil {
		t.Fatal("expected error without a connection")
	}
}
