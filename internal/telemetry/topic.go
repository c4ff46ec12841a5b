package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedTopic = errors.New("malformed topic")
	ErrUnknownRoot    = errors.New("unknown topic root")
)

// Kořeny jmenných prostorů, které ingestor poslouchá.
const (
	RootIrvine   = "irvine"
	RootMeasures = "measures"
	RootSys      = "$SYS"
)

// TopicKind určuje, kterému handleru se zpráva předá.
type TopicKind int

const (
	KindIgnored TopicKind = iota
	KindIrvine
	KindMeasures
	KindBrokerUptime
)

func (k TopicKind) String() string {
	switch k {
	case KindIrvine:
		return "irvine"
	case KindMeasures:
		return "measures"
	case KindBrokerUptime:
		return "broker_uptime"
	default:
		return "ignored"
	}
}

// Topic je rozparsovaný MQTT topic.
// DeviceID, MeasureType, User a Family jsou vyplněné jen pro jmenné prostory, které je nesou.
type Topic struct {
	Kind     TopicKind
	Root     string
	Segments []string

	DeviceID    string
	MeasureType string
	User        string
	Family      DeviceFamily
}

// DecodeTopic rozdělí topic podle "/" na kořen a zbytek a ověří tvar
// podle jmenného prostoru. Nic nemění, jen klasifikuje.
func DecodeTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")
	t := Topic{Root: parts[0], Segments: parts[1:]}

	switch t.Root {
	case RootIrvine:
		// irvine/<device_id>/<measure_type>[/...]
		if len(t.Segments) < 2 || t.Segments[0] == "" || t.Segments[1] == "" {
			return Topic{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
		}
		t.Kind = KindIrvine
		t.DeviceID = t.Segments[0]
		t.MeasureType = t.Segments[1]
		return t, nil

	case RootSys:
		// Zajímá nás jen $SYS/broker/uptime, zbytek $SYS stromu tiše ignorujeme.
		if len(t.Segments) == 2 && t.Segments[0] == "broker" && t.Segments[1] == "uptime" {
			t.Kind = KindBrokerUptime
		}
		return t, nil

	case RootMeasures:
		// measures/<user>/<device_type>/<device_id>/<measure_type>
		if len(t.Segments) != 4 {
			return Topic{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
		}
		for _, s := range t.Segments {
			if s == "" {
				return Topic{}, fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
			}
		}
		family, err := ParseDeviceFamily(t.Segments[1])
		if err != nil {
			return Topic{}, err
		}
		t.Kind = KindMeasures
		t.User = t.Segments[0]
		t.Family = family
		t.DeviceID = t.Segments[2]
		t.MeasureType = t.Segments[3]
		return t, nil
	}

	return Topic{}, fmt.Errorf("%w: %q", ErrUnknownRoot, t.Root)
}
