package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	apperrors "github.com/target/runplane/internal/errors"
)

// Duration is a time.Duration that travels over JSON as an ISO-8601
// duration literal ("PT60S"). A bare number of seconds is also accepted
// on input.
type Duration time.Duration

var reISODuration = regexp.MustCompile(
	`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperrors.ValidationField("lease_duration", "invalid duration")
	}

	switch v := raw.(type) {
	case string:
		parsed, err := parseISODuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case float64:
		if v < 0 {
			return apperrors.ValidationField("lease_duration", "duration must not be negative")
		}
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	default:
		return apperrors.ValidationField("lease_duration", "duration must be an ISO 8601 string or a number of seconds")
	}
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", d.ISO8601())), nil
}

// ISO8601 renders the duration as a whole number of seconds, "PT60S".
func (d Duration) ISO8601() string {
	return fmt.Sprintf("PT%dS", int64(time.Duration(d)/time.Second))
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func parseISODuration(s string) (time.Duration, error) {
	m := reISODuration.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, apperrors.ValidationField("lease_duration", "invalid ISO 8601 duration")
	}

	var total time.Duration
	if m[1] != "" {
		days, _ := strconv.Atoi(m[1])
		total += time.Duration(days) * 24 * time.Hour
	}
	if m[2] != "" {
		hours, _ := strconv.Atoi(m[2])
		total += time.Duration(hours) * time.Hour
	}
	if m[3] != "" {
		minutes, _ := strconv.Atoi(m[3])
		total += time.Duration(minutes) * time.Minute
	}
	if m[4] != "" {
		seconds, _ := strconv.ParseFloat(m[4], 64)
		total += time.Duration(seconds * float64(time.Second))
	}
	return total, nil
}
