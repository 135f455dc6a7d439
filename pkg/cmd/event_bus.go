package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/onios/onid/pkg/channels/gochannel"
	"github.com/onios/onid/pkg/eventbus"
)

// NewEventBus builds the in-process event bus the sidecar runs on.
func NewEventBus(logger *slog.Logger) eventbus.EventBus {
	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
	}

	return eventbus.NewWatermillEventBus(pub, sub)
}
