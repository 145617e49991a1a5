package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/circleup-app/circleup-backend/pkg/enums"
)

// ChannelList stores the delivery channel set as a Postgres text array.
type ChannelList []enums.DeliveryChannel

func (l *ChannelList) Scan(src any) error {
	if src == nil {
		*l = ChannelList{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return l.parseFromString(v)
	case []byte:
		return l.parseFromString(string(v))
	default:
		return fmt.Errorf("ChannelList: unsupported Scan type %T", src)
	}
}

func (l ChannelList) Value() (driver.Value, error) {
	// Postgres array literal: {in_app,push}
	if len(l) == 0 {
		return "{}", nil
	}
	parts := make([]string, 0, len(l))
	for _, channel := range l {
		parts = append(parts, string(channel))
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

// Contains reports whether the list carries the given channel.
func (l ChannelList) Contains(channel enums.DeliveryChannel) bool {
	for _, candidate := range l {
		if candidate == channel {
			return true
		}
	}
	return false
}

func (l *ChannelList) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "{}" || s == "" {
		*l = ChannelList{}
		return nil
	}
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if strings.TrimSpace(s) == "" {
		*l = ChannelList{}
		return nil
	}

	raw := strings.Split(s, ",")
	out := make([]enums.DeliveryChannel, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(strings.Trim(r, `"`))
		channel, err := enums.ParseDeliveryChannel(r)
		if err != nil {
			return fmt.Errorf("ChannelList: %w", err)
		}
		out = append(out, channel)
	}
	*l = ChannelList(out)
	return nil
}
