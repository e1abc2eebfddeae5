// Package gcode parses the line-based ASCII command protocol.
//
// The dialect is a small G-code subset: a leading word (G1, M112, S25, ...)
// followed by letter/number parameter words. Numeric scanning is
// deliberately forgiving: it consumes characters while they extend a
// signed decimal literal and stops at the first one that does not, so a
// garbled suffix truncates a value instead of rejecting the line.
package gcode

import "strings"

// Command is one parsed protocol line.
type Command struct {
	Letter byte             // 'G', 'M' or 'S'
	Number int              // Command number (1 for G1, 112 for M112)
	Value  float64          // Numeric value of the leading word
	Params map[byte]float64 // Parameter words (X, Y, Z, F, I, J, K, L, C, S)
	Raw    string           // Normalized source line
}

// ParseLine parses a single trimmed protocol line. Empty lines and
// comment-only lines return nil with no error.
func ParseLine(line string) *Command {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	cmd := &Command{
		Params: make(map[byte]float64),
		Raw:    line,
	}

	i := 0
	if line[i] == ';' || line[i] == '(' {
		return nil
	}

	if !isLetter(line[i]) {
		// No leading keyword at all; hand the raw line back so the
		// dispatcher can echo it as an unknown command.
		return cmd
	}

	cmd.Letter = toUpper(line[i])
	i++

	value, newPos := ParseFloat(line, i)
	if newPos > i {
		cmd.Value = value
		cmd.Number = int(value)
		i = newPos
	}

	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == ';' || line[i] == '(' {
			break
		}

		if isLetter(line[i]) {
			letter := toUpper(line[i])
			i++
			value, newPos := ParseFloat(line, i)
			if newPos > i {
				cmd.Params[letter] = value
				i = newPos
			} else {
				// Bare word with no digits: sentinel zero.
				cmd.Params[letter] = 0
			}
		} else {
			i++
		}
	}

	return cmd
}

// HasParam checks whether a parameter word is present.
func (cmd *Command) HasParam(param byte) bool {
	_, ok := cmd.Params[param]
	return ok
}

// GetParam returns a parameter value, or the default if absent.
func (cmd *Command) GetParam(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Params[param]; ok {
		return val
	}
	return defaultValue
}

// ParseInt scans a signed decimal integer starting at pos. It returns
// the value and the position after the last digit consumed; if no digit
// is found, it returns 0 and pos unchanged.
func ParseInt(s string, pos int) (int, int) {
	start := pos
	if pos >= len(s) {
		return 0, pos
	}

	negative := false
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	digitsStart := pos
	value := 0
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		value = value*10 + int(s[pos]-'0')
		pos++
	}

	if pos == digitsStart {
		return 0, start
	}
	if negative {
		value = -value
	}
	return value, pos
}

// ParseFloat scans a signed decimal literal starting at pos. Scanning
// stops at the first character that does not fit the pattern; trailing
// garbage truncates the value, it never invalidates it.
func ParseFloat(s string, pos int) (float64, int) {
	start := pos
	if pos >= len(s) {
		return 0, pos
	}

	negative := false
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	digitsStart := pos
	intPart := 0
	fracPart := 0.0
	fracDigits := 0

	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		intPart = intPart*10 + int(s[pos]-'0')
		pos++
	}

	if pos < len(s) && s[pos] == '.' {
		pos++
		fracStart := pos
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			fracPart = fracPart*10.0 + float64(s[pos]-'0')
			pos++
		}
		fracDigits = pos - fracStart
	}

	if pos == digitsStart || (pos == digitsStart+1 && s[digitsStart] == '.') {
		return 0, start
	}

	value := float64(intPart)
	if fracDigits > 0 {
		divisor := 1.0
		for i := 0; i < fracDigits; i++ {
			divisor *= 10.0
		}
		value += fracPart / divisor
	}

	if negative {
		value = -value
	}
	return value, pos
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
