package enums

import "fmt"

// DeliveryChannel identifies a delivery surface a notification fans out to.
type DeliveryChannel string

const (
	DeliveryChannelInApp DeliveryChannel = "in_app"
	DeliveryChannelPush  DeliveryChannel = "push"
)

var validDeliveryChannels = []DeliveryChannel{
	DeliveryChannelInApp,
	DeliveryChannelPush,
}

// IsValid checks whether the given channel matches the canonical set.
func (c DeliveryChannel) IsValid() bool {
	for _, candidate := range validDeliveryChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseDeliveryChannel converts raw strings into DeliveryChannel.
func ParseDeliveryChannel(value string) (DeliveryChannel, error) {
	for _, candidate := range validDeliveryChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery channel %q", value)
}
