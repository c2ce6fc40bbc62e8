package cabling

import (
	"regexp"
	"strings"

	"rackyard/internal/faults"
)

var macPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)

// NormalizeMAC приводит MAC к канонической форме: lowercase, разделитель
// двоеточие. Принимает формы с "-", "." и вовсе без разделителей.
func NormalizeMAC(mac string) (string, error) {
	m := strings.ToLower(strings.TrimSpace(mac))
	m = strings.ReplaceAll(m, "-", ":")
	m = strings.ReplaceAll(m, ".", ":")
	if !strings.Contains(m, ":") && len(m) == 12 {
		var parts []string
		for i := 0; i < 12; i += 2 {
			parts = append(parts, m[i:i+2])
		}
		m = strings.Join(parts, ":")
	}
	if !macPattern.MatchString(m) {
		return "", faults.New(faults.MacAddress, "Mac address '%s' is not valid. ", mac)
	}
	return m, nil
}
