package chunkspan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ERROR TAXONOMY
// ═══════════════════════════════════════════════════════════════════════════════
// Every failure that reaches a caller of Searcher.Search is one of three kinds:
//
//	ErrExcessiveWork    the query is too broad (term limit, work limit, deadline)
//	ErrConfiguration    the request or index setup cannot be evaluated as asked
//	ErrIndexCorruption  an index invariant does not hold
//
// Recoverable problems (one bad boost line, one unknown group value) are never
// errors; they go through a warnLimiter and processing continues.
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrExcessiveWork   = errors.New("query too broad")
	ErrConfiguration   = errors.New("configuration error")
	ErrIndexCorruption = errors.New("index corruption")

	ErrNoPostingList = errors.New("no posting list exists for term")
)

// QueryError carries one of the error kinds above plus a human readable
// message. Both the kind and the optional cause match errors.Is.
type QueryError struct {
	Kind    error
	Message string
	cause   error
}

func (e *QueryError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *QueryError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Kind, e.cause}
	}
	return []error{e.Kind}
}

func newQueryError(kind error, cause error, format string, args ...any) *QueryError {
	return &QueryError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

func excessiveWork(format string, args ...any) error {
	return newQueryError(ErrExcessiveWork, nil, format, args...)
}

func configError(format string, args ...any) error {
	return newQueryError(ErrConfiguration, nil, format, args...)
}

func corruption(format string, args ...any) error {
	return newQueryError(ErrIndexCorruption, nil, format, args...)
}

// corruptionPanic is raised by internal invariant checks. Searcher.Search
// converts it to an ErrIndexCorruption error; nothing else recovers it.
type corruptionPanic struct {
	err error
}

func failCorrupt(format string, args ...any) {
	panic(&corruptionPanic{err: corruption(format, args...)})
}

// classify maps an arbitrary evaluation failure onto the taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrExcessiveWork),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrIndexCorruption):
		return err
	}
	return newQueryError(ErrIndexCorruption, err, "index read failed")
}

// maxWarnings is the per-category cap on logged warnings.
const maxWarnings = 10

// warnLimiter logs at most maxWarnings messages, then a single suppression
// notice. Safe for concurrent use.
type warnLimiter struct {
	mu       sync.Mutex
	logger   *slog.Logger
	category string
	count    int
}

func newWarnLimiter(logger *slog.Logger, category string) *warnLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &warnLimiter{logger: logger, category: category}
}

func (w *warnLimiter) Warn(msg string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.count++
	switch {
	case w.count <= maxWarnings:
		w.logger.Warn(msg, append(args, slog.String("category", w.category))...)
	case w.count == maxWarnings+1:
		w.logger.Warn("further warnings suppressed", slog.String("category", w.category))
	}
}

// Count reports how many warnings were raised, logged or not.
func (w *warnLimiter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
