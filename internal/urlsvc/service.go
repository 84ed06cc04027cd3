// Package urlsvc implements the shorten and redirect engines: URL
// canonicalization, filter-probe deduplication, collision-retry
// insertion, and validated redirect lookup.
package urlsvc

import (
	"context"
	"errors"
	"strings"

	"github.com/shortlyhq/shortly/internal/apierr"
	"github.com/shortlyhq/shortly/internal/bloomfilter"
	"github.com/shortlyhq/shortly/internal/log"
	"github.com/shortlyhq/shortly/internal/shortcode"
	"github.com/shortlyhq/shortly/internal/storage"
)

const maxURLLength = 2048
const maxAliasLength = 64
const maxGenerateAttempts = 8

// Result is the success envelope payload for a shorten call.
type Result struct {
	ShortenedURL string `json:"shortened_url"`
	OriginalURL  string `json:"original_url"`
	ID           string `json:"id"`
}

// Service implements the shorten/redirect engines over one repository, one
// generator, and the shared membership filter pair: s2l (short-to-long,
// keyed by short identifier) backs the redirect path, l2s (long-to-short,
// keyed by canonical URL) backs the shorten path's dedup probe.
type Service struct {
	repo     storage.URLRepository
	gen      shortcode.Generator
	s2l      *bloomfilter.Filter
	l2s      *bloomfilter.Filter
	alphabet string
	codeLen  int
	baseURL  string
	log      log.Logger
}

// New wires a shorten/redirect engine. baseURL is prefixed to generated
// codes to build the shortened_url field; alphabet/codeLen bound redirect
// input validation (§4.6 steps 1-2).
func New(repo storage.URLRepository, gen shortcode.Generator, s2l, l2s *bloomfilter.Filter, alphabet, baseURL string, codeLen int, logger log.Logger) *Service {
	return &Service{repo: repo, gen: gen, s2l: s2l, l2s: l2s, alphabet: alphabet, codeLen: codeLen, baseURL: baseURL, log: logger}
}

// Shorten implements §4.4: precondition checks, filter-probe dedup, alias
// path, and the generated-code retry loop.
func (s *Service) Shorten(ctx context.Context, rawURL, alias string) (Result, error) {
	if len(rawURL) > maxURLLength {
		return Result{}, apierr.Unprocessablef("URL exceeds maximum allowed length")
	}

	canon, err := canonicalize(rawURL)
	if err != nil {
		return Result{}, err
	}

	if alias != "" {
		if err := s.validateAlias(alias); err != nil {
			return Result{}, err
		}
	}

	if s.l2s.MayContain([]byte(canon)) {
		if existing, err := s.repo.GetByURL(ctx, canon); err == nil {
			return s.toResult(existing), nil
		} else if !errors.Is(err, storage.ErrNotFound) {
			return Result{}, apierr.Internalf("lookup failed")
		}
		// false positive; fall through to insertion
	}

	if alias != "" {
		return s.insertWithAlias(ctx, alias, canon)
	}
	return s.insertGenerated(ctx, canon)
}

func (s *Service) validateAlias(alias string) error {
	if len(alias) == 0 || len(alias) > maxAliasLength {
		return apierr.Unprocessablef("Alias must be between 1 and %d characters", maxAliasLength)
	}
	for _, r := range alias {
		if !strings.ContainsRune(s.alphabet, r) {
			return apierr.Unprocessablef("Alias contains characters outside the configured alphabet")
		}
	}
	return nil
}

func (s *Service) insertWithAlias(ctx context.Context, alias, canon string) (Result, error) {
	result, rec, err := s.repo.InsertURL(ctx, alias, canon)
	if errors.Is(err, storage.ErrDuplicate) {
		return Result{}, apierr.Conflictf("Alias is already taken")
	}
	if err != nil {
		return Result{}, apierr.Internalf("insert failed")
	}
	if result.Created {
		s.s2l.Insert([]byte(alias))
		s.l2s.Insert([]byte(canon))
		s.log.WithField("short_code", alias).Info("url shortened")
	}
	return s.toResult(rec), nil
}

func (s *Service) insertGenerated(ctx context.Context, canon string) (Result, error) {
	for i := 0; i < maxGenerateAttempts; i++ {
		candidate, err := s.gen.Generate()
		if errors.Is(err, shortcode.ErrExhausted) {
			return Result{}, apierr.Internalf("short code space exhausted")
		}
		if err != nil {
			return Result{}, apierr.Internalf("code generation failed")
		}

		result, rec, err := s.repo.InsertURL(ctx, candidate, canon)
		if errors.Is(err, storage.ErrDuplicate) {
			continue
		}
		if err != nil {
			return Result{}, apierr.Internalf("insert failed")
		}

		if result.Created {
			s.s2l.Insert([]byte(candidate))
			s.l2s.Insert([]byte(canon))
			s.log.WithField("short_code", candidate).Info("url shortened")
		}
		return s.toResult(rec), nil
	}
	return Result{}, apierr.Internalf("ID collision occurred")
}

func (s *Service) toResult(rec storage.URLRecord) Result {
	return Result{
		ShortenedURL: s.baseURL + "/" + rec.Code,
		OriginalURL:  rec.URL,
		ID:           rec.ID,
	}
}

// Redirect implements §4.6: cheap rejects before any store round trip.
func (s *Service) Redirect(ctx context.Context, code string) (string, error) {
	if len([]rune(code)) > s.codeLen {
		return "", apierr.NotFoundf("not found")
	}
	for _, r := range code {
		if !strings.ContainsRune(s.alphabet, r) {
			return "", apierr.NotFoundf("not found")
		}
	}
	if !s.s2l.MayContain([]byte(code)) {
		return "", apierr.NotFoundf("not found")
	}

	rec, err := s.repo.GetURL(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apierr.NotFoundf("not found")
	}
	if err != nil {
		return "", apierr.Internalf("lookup failed")
	}
	return rec.URL, nil
}
