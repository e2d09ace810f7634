package httpcache

import (
	"context"
	"errors"
	"time"

	"github.com/always-cache/httpcache/rfc9111"
)

// Merge applies the response to a validation request to the record, using
// the default policy and no rules.
//
// A 304 keeps status and body and updates the stored header fields with the
// ones received; the record is re-dated at now unless the 304 carries a Date.
// A 200 replaces the record exactly as if it was stored with Put. Either
// returns ErrNotCacheable if the result must not be stored, e.g. when the
// validation response carries no-store. Any other status leaves the record as
// it is and is reported as rfc9111.ValidationFailed.
func Merge(rec Record, res Response, now time.Time) (Record, rfc9111.ValidationOutcome, error) {
	return recordBuilder{}.merge(rec, res, now)
}

func (b recordBuilder) merge(rec Record, res Response, now time.Time) (Record, rfc9111.ValidationOutcome, error) {
	outcome := rfc9111.ClassifyValidationResponse(res.statusCode())
	switch outcome {
	case rfc9111.NotModified:
		merged, err := b.freshen(rec, res, now)
		return merged, outcome, err
	case rfc9111.FullResponse:
		merged, err := b.build(rec.Key, res, now)
		return merged, outcome, err
	}
	return rec, outcome, nil
}

// Revalidate applies the response to a validation request to the record
// stored under the key and returns the lookup of the result.
//
//   - 304: the merged record is written.
//   - 200: the response is stored as with Put.
//   - either: if the result is not cacheable, the old record is deleted and
//     ErrNotCacheable is returned.
//   - otherwise: the record is deleted if it has must-revalidate and kept
//     otherwise; the returned lookup reflects that.
//
// If there is no record, only a 200 is stored.
func (s *Store) Revalidate(ctx context.Context, key string, res Response) (Lookup, error) {
	unlock := s.locks.lock(key)
	defer unlock()
	now := s.now()
	log := s.log.With().Str("key", key).Int("status", res.statusCode()).Logger()

	rec, ok, err := s.load(ctx, key)
	if err != nil {
		return Lookup{Verdict: rfc9111.Absent}, err
	}

	if !ok && rfc9111.ClassifyValidationResponse(res.statusCode()) != rfc9111.FullResponse {
		log.Trace().Msg("Nothing to revalidate")
		return Lookup{Verdict: rfc9111.Absent}, nil
	}
	if !ok {
		rec = Record{Key: key}
	}

	merged, outcome, err := s.builder().merge(rec, res, now)
	switch {
	case errors.Is(err, ErrNotCacheable):
		if ok {
			log.Debug().Msg("Validation response is not cacheable, deleting stored response")
			if delErr := s.provider.Delete(ctx, key); delErr != nil {
				return Lookup{Verdict: rfc9111.Absent}, errors.Join(err, ErrStorage, delErr)
			}
		}
		return Lookup{Verdict: rfc9111.Absent}, err
	case err != nil:
		return Lookup{Verdict: rfc9111.Absent}, err
	case outcome != rfc9111.ValidationFailed:
		s.logDropped(key, merged.CacheControl)
		if err := s.write(ctx, merged); err != nil {
			return Lookup{Verdict: rfc9111.Absent}, err
		}
		log.Trace().Stringer("outcome", outcome).Msg("Stored validation response")
		return lookup(merged, now), nil
	}

	if rfc9111.MustNotServeOnFailure(rec.StoredResponse) {
		log.Debug().Msg("Validation failed, deleting must-revalidate response")
		if err := s.provider.Delete(ctx, key); err != nil {
			return Lookup{Verdict: rfc9111.Absent}, errors.Join(ErrStorage, err)
		}
		return Lookup{Verdict: rfc9111.Absent}, nil
	}
	log.Debug().Msg("Validation failed, keeping stored response")
	return lookup(rec, now), nil
}
