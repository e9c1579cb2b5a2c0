package dedupe_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/suite"

	"registro/internal/dedupe"
	"registro/internal/dedupe/block"
	"registro/internal/dedupe/models"
	"registro/internal/registry"
	id "registro/pkg/domain"
)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *registry.InMemoryStore
	service *dedupe.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = registry.NewInMemoryStore()
	service, err := dedupe.New(s.store)
	s.Require().NoError(err)
	s.service = service
}

func (s *ServiceSuite) seedIndividual(first, last, psn, birth, address string) registry.Entity {
	rec := models.Record{
		Type: id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{
			FirstName: first,
			LastName:  last,
			PSN:       id.PSN(psn),
			BirthDate: birth,
			Address:   address,
		},
	}
	now := time.Now().UTC()
	entity := registry.Entity{
		ID:         id.NewEntityID(),
		Type:       id.EntityTypeIndividual,
		Attributes: rec,
		Normalized: s.service.Normalize(rec),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
	s.Require().NoError(s.store.Insert(s.ctx, entity))
	s.service.IndexEntity(entity)
	return entity
}

func individualRecord(first, last, psn, birth, address string) models.Record {
	return models.Record{
		Type: id.EntityTypeIndividual,
		Individual: &models.IndividualAttrs{
			FirstName: first,
			LastName:  last,
			PSN:       id.PSN(psn),
			BirthDate: birth,
			Address:   address,
		},
	}
}

func (s *ServiceSuite) TestCheckFindsSeededDuplicate() {
	seeded := s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	result, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main Street"),
		Algorithm: models.AlgorithmFuzzy,
		Threshold: 0.8,
	})

	s.Require().NoError(err)
	s.Require().Len(result.Matches, 1)
	s.Equal(seeded.ID, result.Matches[0].EntityID)
	s.GreaterOrEqual(result.Matches[0].Confidence, 0.8)
}

func (s *ServiceSuite) TestCheckEmptyRecordYieldsZeroMatches() {
	s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	result, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record: models.Record{Type: id.EntityTypeIndividual, Individual: &models.IndividualAttrs{}},
	})

	s.Require().NoError(err)
	s.Empty(result.Matches)
}

func (s *ServiceSuite) TestCheckUnknownEntityTypeYieldsZeroMatches() {
	result, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record: models.Record{Type: id.EntityType("BARANGAY")},
	})

	s.Require().NoError(err)
	s.Empty(result.Matches)
}

func (s *ServiceSuite) TestCheckUnsupportedAlgorithmYieldsZeroMatches() {
	s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	result, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"),
		Algorithm: models.Algorithm("METAPHONE"),
	})

	s.Require().NoError(err)
	s.Empty(result.Matches)
}

func (s *ServiceSuite) TestCheckThresholdDiscardsWeakCandidates() {
	s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	// Same blocking bucket, weak similarity.
	strict, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juanito", "Della Crus", "", "1990-01-01", "99 Other Rd"),
		Algorithm: models.AlgorithmFuzzy,
		Threshold: 0.99,
	})
	s.Require().NoError(err)
	lenient, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juanito", "Della Crus", "", "1990-01-01", "99 Other Rd"),
		Algorithm: models.AlgorithmFuzzy,
		Threshold: 0.1,
	})
	s.Require().NoError(err)

	s.Empty(strict.Matches)
	s.NotEmpty(lenient.Matches)
}

func (s *ServiceSuite) TestNoSharedBlockingKeyMeansNoCandidates() {
	s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	result, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Wilhelmina", "Ocampo", "", "1962-11-30", "88 Mabini Blvd"),
		Algorithm: models.AlgorithmFuzzy,
		Threshold: 0.01,
	})

	s.Require().NoError(err)
	s.Empty(result.Matches)
}

func (s *ServiceSuite) TestResolveMatchesSeededEntity() {
	seeded := s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	normalized := s.service.Normalize(individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main Street"))
	resolution, err := s.service.Resolve(s.ctx, normalized, models.AlgorithmFuzzy)

	s.Require().NoError(err)
	s.Equal(models.DecisionMatch, resolution.Decision)
	s.Require().NotNil(resolution.Best)
	s.Equal(seeded.ID, resolution.Best.EntityID)
}

func (s *ServiceSuite) TestResolveNoCandidatesIsNoMatch() {
	normalized := s.service.Normalize(individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"))
	resolution, err := s.service.Resolve(s.ctx, normalized, models.AlgorithmFuzzy)

	s.Require().NoError(err)
	s.Equal(models.DecisionNoMatch, resolution.Decision)
	s.Nil(resolution.Best)
}

func (s *ServiceSuite) TestResolveRejectsUnsupportedAlgorithm() {
	normalized := s.service.Normalize(individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"))
	_, err := s.service.Resolve(s.ctx, normalized, models.Algorithm("METAPHONE"))

	s.Error(err)
}

func (s *ServiceSuite) TestRebuildIndexRestoresLookups() {
	seeded := s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")
	s.service.RemoveFromIndex(seeded.ID)

	before, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"),
		Threshold: 0.5,
	})
	s.Require().NoError(err)
	s.Empty(before.Matches)

	s.Require().NoError(s.service.RebuildIndex(s.ctx))

	after, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"),
		Threshold: 0.5,
	})
	s.Require().NoError(err)
	s.Require().Len(after.Matches, 1)
	s.Equal(seeded.ID, after.Matches[0].EntityID)
}

func (s *ServiceSuite) TestCheckUnderCandidatePressure() {
	faker := gofakeit.New(7)

	// A large synthetic cohort sharing one surname and birth year keeps
	// every record in the same blocking bucket, past the candidate cap.
	year := "1985"
	s.seedIndividual("Maria", "Santos", "", year+"-03-14", "1 Mabini St")
	for i := 0; i < block.DefaultCandidateCap+49; i++ {
		s.seedIndividual(faker.FirstName(), "Santos", "", year+"-03-14", faker.Street())
	}

	resp, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Maria", "Santos", "", year+"-03-14", "1 Mabini St"),
		Threshold: 0.5,
	})

	s.Require().NoError(err)
	s.NotEmpty(resp.Matches)
	s.LessOrEqual(len(resp.Matches), block.DefaultCandidateCap)

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(block.DefaultCandidateCap+50, stats.IndexedEntities)
}

func (s *ServiceSuite) TestStatsTrackActivity() {
	s.seedIndividual("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St")

	_, err := s.service.Check(s.ctx, dedupe.CheckRequest{
		Record:    individualRecord("Juan", "Dela Cruz", "", "1990-01-01", "123 Main St"),
		Threshold: 0.5,
	})
	s.Require().NoError(err)

	normalized := s.service.Normalize(individualRecord("Pedro", "Reyes", "", "1970-02-02", "9 Rizal Ave"))
	_, err = s.service.Resolve(s.ctx, normalized, models.AlgorithmFuzzy)
	s.Require().NoError(err)

	stats, err := s.service.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.TotalChecks)
	s.Equal(int64(1), stats.DuplicatesFound)
	s.Equal(int64(1), stats.NoMatches)
	s.Equal(1, stats.IndexedEntities)
}
