package lime2node

import (
	"encoding/json"
	"strconv"
	"time"

	"go.yaml.in/yaml/v4"
)

// Duration accepts Go durations ("30s", "1m30s") or an integer amount of
// seconds.
type Duration struct {
	time.Duration
}

func parseDuration(str string) (time.Duration, error) {
	if secs, err := strconv.Atoi(str); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(str)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		// Plain number of seconds.
		str = string(data)
	}

	v, err := parseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	err := value.Decode(&str)
	if err != nil {
		return err
	}

	if str == "" {
		return nil
	}

	v, err := parseDuration(str)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
