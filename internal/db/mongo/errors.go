package mongo

import (
	"errors"
	"fmt"
	"strings"

	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/kailas-cloud/vecsync/internal/domain"
)

// Server error codes the pipeline reacts to.
const (
	codeDuplicateKey            = 11000
	codeBSONObjectTooLarge      = 10334
	codeUpdatedDocTooLarge      = 17419
	codeInvalidResumeToken      = 260
	codeChangeStreamFatal       = 280
	codeChangeStreamHistoryLost = 286
)

// classify maps driver errors onto domain sentinels, keeping the original in the chain.
// Network and timeout failures are marked retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if mongodriver.IsDuplicateKeyError(err) || hasCode(err, codeDuplicateKey) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrAlreadyExists, err)
	}
	if hasCode(err, codeBSONObjectTooLarge, codeUpdatedDocTooLarge) || reportsTooLarge(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrDocumentTooLarge, err)
	}
	if hasCode(err, codeChangeStreamHistoryLost, codeInvalidResumeToken, codeChangeStreamFatal) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrResumePointLost, err)
	}
	if mongodriver.IsNetworkError(err) || mongodriver.IsTimeout(err) {
		return domain.NewRetryable(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

func hasCode(err error, codes ...int) bool {
	var se mongodriver.ServerError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.HasErrorCode(c) {
			return true
		}
	}
	return false
}

// reportsTooLarge catches client-side size checks, which carry no server code.
func reportsTooLarge(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "document is too large") || strings.Contains(msg, "bsonobjecttoolarge")
}
