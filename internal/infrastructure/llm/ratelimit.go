package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCooldown = 30 * time.Second
	maxCooldown     = 2 * time.Minute
)

type limitKind int

const (
	notLimited limitKind = iota
	limitTransient
	limitDaily
)

var cooldownRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`),
	regexp.MustCompile(`(?i)retry[_ ]?delay"?\s*[:=]\s*"?([0-9]+(?:\.[0-9]+)?)s`),
	regexp.MustCompile(`(?i)retry after ([0-9]+(?:\.[0-9]+)?)\s*(?:s|sec|seconds)?\b`),
}

// classifyLimit inspects the backend's error text. A daily marker means the
// quota will not come back soon enough to be worth waiting for.
func classifyLimit(err error) limitKind {
	if err == nil {
		return notLimited
	}
	msg := strings.ToLower(err.Error())
	limited := strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
	if !limited {
		return notLimited
	}
	if strings.Contains(msg, "daily") || strings.Contains(msg, "per day") || strings.Contains(msg, "perday") {
		return limitDaily
	}
	return limitTransient
}

func cooldownFrom(err error) time.Duration {
	if err == nil {
		return defaultCooldown
	}
	msg := err.Error()
	for _, re := range cooldownRes {
		m := re.FindStringSubmatch(msg)
		if len(m) < 2 {
			continue
		}
		secs, perr := strconv.ParseFloat(m[1], 64)
		if perr != nil || secs <= 0 {
			continue
		}
		d := time.Duration(secs * float64(time.Second))
		if d > maxCooldown {
			return maxCooldown
		}
		return d
	}
	return defaultCooldown
}
