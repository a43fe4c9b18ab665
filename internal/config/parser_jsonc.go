package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func decodeJSONC(content string) (filePayload, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return filePayload{}, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		return filePayload{}, locateJSONError(normalized, err)
	}

	var extra json.RawMessage
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return payload, nil
	case err == nil:
		return filePayload{}, errors.New("multiple JSON values are not allowed")
	default:
		return filePayload{}, locateJSONError(normalized, err)
	}
}

// normalizeJSONC blanks comments and trailing commas with spaces. The result
// is plain JSON whose byte offsets match the input, so decode errors point
// at the user's own line and column.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	inString, escaped := false, false
	pendingComma := -1

	for i := 0; i < len(out); i++ {
		ch := out[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch {
		case ch == '"':
			inString = true
			pendingComma = -1
		case ch == '/' && i+1 < len(out) && out[i+1] == '/':
			end := i
			for end < len(out) && out[end] != '\n' && out[end] != '\r' {
				end++
			}
			blank(out[i:end])
			i = end - 1
		case ch == '/' && i+1 < len(out) && out[i+1] == '*':
			closing := strings.Index(content[i+2:], "*/")
			if closing < 0 {
				return "", errors.New("unterminated block comment in JSONC")
			}
			end := i + 2 + closing + 2
			blank(out[i:end])
			i = end - 1
		case ch == ',':
			pendingComma = i
		case ch == '}' || ch == ']':
			if pendingComma >= 0 {
				out[pendingComma] = ' '
			}
			pendingComma = -1
		case ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t':
		default:
			pendingComma = -1
		}
	}
	return string(out), nil
}

// blank overwrites b with spaces, keeping line breaks.
func blank(b []byte) {
	for i, ch := range b {
		if ch != '\n' && ch != '\r' {
			b[i] = ' '
		}
	}
}

// locateJSONError prefixes decode errors with a 1-based line and column.
func locateJSONError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return atOffset(content, syntaxErr.Offset, err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return atOffset(content, typeErr.Offset, err)
	}

	const unknownPrefix = "json: unknown field "
	if msg := err.Error(); strings.HasPrefix(msg, unknownPrefix) {
		key := strings.TrimPrefix(msg, unknownPrefix)
		if idx := strings.Index(content, key); idx >= 0 {
			return atOffset(content, int64(idx+1), err)
		}
	}
	return err
}

func atOffset(content string, offset int64, err error) error {
	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}
	limit := min(int(offset), len(content))
	if limit < 1 {
		return 1, 1
	}

	before := content[:limit-1]
	line := strings.Count(before, "\n") + 1
	col := limit - strings.LastIndexByte(before, '\n') - 1
	return line, col
}
