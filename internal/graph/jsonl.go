package graph

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"kartograph-backend/internal/errors"
)

// maxLineBytes bounds one JSONL line; property maps are small relative to
// this, so exceeding it indicates a malformed input.
const maxLineBytes = 4 * 1024 * 1024

// ReadOperations decodes a JSONL mutation stream: one operation per line,
// blank lines ignored. Every operation is validated; a malformed line fails
// the whole batch with its line number.
func ReadOperations(r io.Reader) ([]Operation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var ops []Operation
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var op Operation
		decoder := json.NewDecoder(strings.NewReader(text))
		if err := decoder.Decode(&op); err != nil {
			return nil, errors.Validation(
				fmt.Sprintf("malformed operation at line %d", line), err.Error())
		}
		if err := op.Validate(); err != nil {
			// Keep the typed kind (notably INVALID_LABEL_NAME) visible to
			// callers; the line number goes into the details.
			var ke *errors.KartographError
			if stderrors.As(err, &ke) {
				return nil, errors.New(ke.Kind, ke.Message).
					WithDetails(append(ke.Details, fmt.Sprintf("line %d", line))...).
					Build()
			}
			return nil, errors.New(errors.KindValidation,
				fmt.Sprintf("invalid operation at line %d", line)).WithCause(err).Build()
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Validation("failed to read operation stream", err.Error())
	}
	return ops, nil
}
