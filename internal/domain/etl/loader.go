package etl

import (
	"context"

	"github.com/rs/zerolog"
)

// Loader performs one-create-per-record loads against the CRM. Each
// record's outcome is independent; a rejected record never aborts the rest
// of the batch.
type Loader struct {
	crm    CRMConnection
	logger zerolog.Logger
}

func NewLoader(crm CRMConnection, logger zerolog.Logger) *Loader {
	return &Loader{crm: crm, logger: logger}
}

// Load submits records for objectType in order. An empty input returns a
// zero LoadResult without touching the CRM.
func (l *Loader) Load(ctx context.Context, objectType string, records []Record) LoadResult {
	result := LoadResult{Object: objectType, Total: len(records)}
	if len(records) == 0 {
		return result
	}

	l.logger.Info().
		Str("object", objectType).
		Int("records", len(records)).
		Msg("submitting load")

	for i, record := range records {
		id, err := l.crm.Create(ctx, objectType, record)
		if err != nil {
			result.FailureCount++
			result.Failures = append(result.Failures, LoadFailure{
				Index:  i,
				Record: record,
				Err:    err.Error(),
			})
			continue
		}
		result.SuccessCount++
		result.Successes = append(result.Successes, LoadSuccess{
			Index:  i,
			Record: record,
			ID:     id,
		})
	}

	l.logger.Info().
		Str("object", objectType).
		Int("successes", result.SuccessCount).
		Int("failures", result.FailureCount).
		Msg("load complete")
	return result
}
