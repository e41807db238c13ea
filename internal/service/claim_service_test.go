package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/dto"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/pkg/config"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

type claimRepoStub struct {
	created []*models.Claim
	claims  map[string]*models.Claim
	docs    map[string]*models.Document
	err     error
}

func (s *claimRepoStub) Create(ctx context.Context, claim *models.Claim) error {
	if s.err != nil {
		return s.err
	}
	claim.ID = "claim-1"
	claim.Status = models.ClaimStatusPending
	s.created = append(s.created, claim)
	return nil
}

func (s *claimRepoStub) FindDetail(ctx context.Context, id string) (*models.Claim, error) {
	if s.err != nil {
		return nil, s.err
	}
	if claim, ok := s.claims[id]; ok {
		return claim, nil
	}
	return nil, sql.ErrNoRows
}

func (s *claimRepoStub) List(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	var result []models.Claim
	for _, claim := range s.claims {
		if filter.LecturerID != "" && claim.LecturerID != filter.LecturerID {
			continue
		}
		result = append(result, *claim)
	}
	return result, len(result), nil
}

func (s *claimRepoStub) FindDocument(ctx context.Context, claimID, docID string) (*models.Document, error) {
	if doc, ok := s.docs[docID]; ok && doc.ClaimID == claimID {
		return doc, nil
	}
	return nil, sql.ErrNoRows
}

type resolverStub struct {
	lecturer *models.Lecturer
	err      error
}

func (s resolverStub) ResolveForPrincipal(ctx context.Context, claims *models.JWTClaims) (*models.Lecturer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.lecturer, nil
}

func testClaimsConfig() config.ClaimsConfig {
	return config.ClaimsConfig{
		MaxMonthlyHours:   180,
		MinClaimHours:     0.25,
		MaxUploadBytes:    10 * 1024 * 1024,
		AllowedExtensions: []string{".pdf", ".docx", ".xlsx"},
	}
}

func lecturerPrincipal() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u1", Role: models.RoleLecturer, Email: "a@uni.example", FullName: "Dr A"}
}

func TestClaimServiceSubmitComputesExactAmount(t *testing.T) {
	repo := &claimRepoStub{}
	resolver := resolverStub{lecturer: &models.Lecturer{
		ID:         "l1",
		Name:       "Dr A",
		HourlyRate: decimal.RequireFromString("670"),
		Active:     true,
	}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	claim, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{
		HoursWorked: "20",
		Notes:       "August lectures",
	})
	require.NoError(t, err)

	assert.True(t, claim.TotalAmount.Equal(decimal.RequireFromString("13400")), "expected 13400, got %s", claim.TotalAmount)
	assert.True(t, claim.TotalHours.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, models.ClaimStatusPending, claim.Status)
	require.Len(t, claim.Items, 1)
	assert.True(t, claim.Items[0].Rate.Equal(decimal.RequireFromString("670")))
	assert.Equal(t, 1, claim.Month.Day())
}

func TestClaimServiceSubmitRejectsUnsupportedFileType(t *testing.T) {
	repo := &claimRepoStub{}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1", HourlyRate: decimal.RequireFromString("500")}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{
		HoursWorked: "10",
		Files: []dto.SubmittedFile{
			{FileName: "malware.exe", ContentType: "application/octet-stream", Size: 100, Content: []byte("x")},
		},
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.NotEmpty(t, appErr.Fields)
	msg := appErr.Fields[0].Message
	assert.Contains(t, msg, "malware.exe")
	assert.Contains(t, msg, ".pdf")
	assert.Empty(t, repo.created)
}

func TestClaimServiceSubmitHoursBounds(t *testing.T) {
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1", HourlyRate: decimal.RequireFromString("500")}}
	svc := NewClaimService(&claimRepoStub{}, resolver, testClaimsConfig(), nil)

	cases := []struct {
		name  string
		hours string
	}{
		{"zero", "0"},
		{"negative", "-4"},
		{"below minimum", "0.1"},
		{"above monthly cap", "181"},
		{"not a number", "twenty"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{HoursWorked: tc.hours})
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestClaimServiceSubmitRejectsOverlongNotes(t *testing.T) {
	repo := &claimRepoStub{}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1", HourlyRate: decimal.RequireFromString("500")}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{
		HoursWorked: "10",
		Notes:       strings.Repeat("x", 5000),
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.NotEmpty(t, appErr.Fields)
	assert.Equal(t, "notes", appErr.Fields[0].Field)
	assert.Empty(t, repo.created)

	// Exactly at the limit is still fine.
	_, err = svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{
		HoursWorked: "10",
		Notes:       strings.Repeat("x", 500),
	})
	require.NoError(t, err)
}

func TestClaimServiceSubmitInvalidatesDashboardCache(t *testing.T) {
	repo := &claimRepoStub{}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1", HourlyRate: decimal.RequireFromString("500")}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)
	cache := &dashboardCacheStub{}
	svc.SetDashboardCache(cache)

	// A rejected submission never touches the cache.
	_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{HoursWorked: "-1"})
	require.Error(t, err)
	assert.Equal(t, 0, cache.invalidations)

	_, err = svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{HoursWorked: "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)
}

func TestClaimServiceSubmitFailsWithoutLecturerProfile(t *testing.T) {
	resolver := resolverStub{err: appErrors.Clone(appErrors.ErrNoLecturerProfile, "")}
	svc := NewClaimService(&claimRepoStub{}, resolver, testClaimsConfig(), nil)

	_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{HoursWorked: "10"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoLecturerProfile.Code, appErrors.FromError(err).Code)
}

func TestClaimServiceSubmitCollectsAllValidationFailures(t *testing.T) {
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1", HourlyRate: decimal.RequireFromString("500")}}
	svc := NewClaimService(&claimRepoStub{}, resolver, testClaimsConfig(), nil)

	_, err := svc.Submit(context.Background(), lecturerPrincipal(), dto.SubmitClaimRequest{
		HoursWorked: "-1",
		Files: []dto.SubmittedFile{
			{FileName: "notes.txt", Size: 10},
		},
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Len(t, appErr.Fields, 2)
}

func TestClaimServiceListScopesLecturerToOwnClaims(t *testing.T) {
	repo := &claimRepoStub{claims: map[string]*models.Claim{
		"c1": {ID: "c1", LecturerID: "l1"},
		"c2": {ID: "c2", LecturerID: "l2"},
	}}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1"}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	claims, pagination, err := svc.List(context.Background(), lecturerPrincipal(), models.ClaimFilter{})
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "c1", claims[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestClaimServiceGetDeniesForeignClaim(t *testing.T) {
	repo := &claimRepoStub{claims: map[string]*models.Claim{
		"c2": {ID: "c2", LecturerID: "l2"},
	}}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1"}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	_, err := svc.Get(context.Background(), lecturerPrincipal(), "c2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestClaimServiceDownloadDocument(t *testing.T) {
	repo := &claimRepoStub{
		claims: map[string]*models.Claim{"c1": {ID: "c1", LecturerID: "l1"}},
		docs:   map[string]*models.Document{"d1": {ID: "d1", ClaimID: "c1", OriginalFileName: "timesheet.pdf", Content: []byte("pdf")}},
	}
	resolver := resolverStub{lecturer: &models.Lecturer{ID: "l1"}}
	svc := NewClaimService(repo, resolver, testClaimsConfig(), nil)

	doc, err := svc.DownloadDocument(context.Background(), lecturerPrincipal(), "c1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "timesheet.pdf", doc.OriginalFileName)
	assert.True(t, strings.HasPrefix(string(doc.Content), "pdf"))
}
