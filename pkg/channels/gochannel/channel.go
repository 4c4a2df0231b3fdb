// Package gochannel provides the in-process transport for change announcements, used in
// tests and single-process deployments.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel creates a GoChannel-based publisher and subscriber.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,  // Buffer size for output channels
			Persistent:                     false, // Don't persist messages after consumption
			BlockPublishUntilSubscriberAck: false, // Don't block on publish
		},
		logger,
	)

	// one instance serves as both ends
	return pubSub, pubSub, nil
}
