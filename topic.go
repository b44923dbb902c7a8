package transitlake

import (
	"strings"
)

// MatchTopic reports whether an MQTT topic filter matches a topic
// name. `+` matches exactly one level, `#` matches the remainder of
// the topic including its parent level.
func MatchTopic(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, f := range filterLevels {
		if f == "#" {
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if f != "+" && f != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
