package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cmcs-platform/claims-api/internal/middleware"
	"github.com/cmcs-platform/claims-api/internal/models"
	"github.com/cmcs-platform/claims-api/internal/service"
	"github.com/cmcs-platform/claims-api/pkg/config"
)

type claimRepoMock struct {
	created []*models.Claim
	claims  map[string]*models.Claim
}

func (m *claimRepoMock) Create(ctx context.Context, claim *models.Claim) error {
	claim.ID = "claim-1"
	m.created = append(m.created, claim)
	return nil
}

func (m *claimRepoMock) FindDetail(ctx context.Context, id string) (*models.Claim, error) {
	if claim, ok := m.claims[id]; ok {
		return claim, nil
	}
	return nil, nil
}

func (m *claimRepoMock) List(ctx context.Context, filter models.ClaimFilter) ([]models.Claim, int, error) {
	var out []models.Claim
	for _, claim := range m.claims {
		out = append(out, *claim)
	}
	return out, len(out), nil
}

func (m *claimRepoMock) FindDocument(ctx context.Context, claimID, docID string) (*models.Document, error) {
	return nil, nil
}

type resolverMock struct {
	lecturer *models.Lecturer
	err      error
}

func (m *resolverMock) ResolveForPrincipal(ctx context.Context, claims *models.JWTClaims) (*models.Lecturer, error) {
	return m.lecturer, m.err
}

func lecturerPrincipal() *models.JWTClaims {
	return &models.JWTClaims{UserID: "u1", Email: "jane@uni.edu", FullName: "Jane Doe", Role: models.RoleLecturer}
}

func newGinContext(method, path string, body []byte, contentType string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.Request = req
	return c, w
}

func multipartClaim(t *testing.T, hours string, files map[string][]byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("hours_worked", hours))
	for name, content := range files {
		part, err := writer.CreateFormFile("documents", name)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return buf.Bytes(), writer.FormDataContentType()
}

func newClaimHandler(repo *claimRepoMock, resolver *resolverMock) *ClaimHandler {
	cfg := config.ClaimsConfig{}
	svc := service.NewClaimService(repo, resolver, cfg, nil)
	return NewClaimHandler(svc, cfg)
}

func TestClaimHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &claimRepoMock{claims: map[string]*models.Claim{}}
	resolver := &resolverMock{lecturer: &models.Lecturer{
		ID:         "lec-1",
		Name:       "Jane Doe",
		Email:      "jane@uni.edu",
		HourlyRate: decimal.RequireFromString("670"),
		Active:     true,
	}}
	handler := newClaimHandler(repo, resolver)

	body, contentType := multipartClaim(t, "20", map[string][]byte{"timesheet.pdf": []byte("%PDF-1.4 fake")})
	c, w := newGinContext(http.MethodPost, "/claims", body, contentType)
	c.Set(middleware.ContextUserKey, lecturerPrincipal())

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.created, 1)
	require.Equal(t, "13400", repo.created[0].TotalAmount.String())
}

func TestClaimHandlerSubmitUnsupportedFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &claimRepoMock{claims: map[string]*models.Claim{}}
	resolver := &resolverMock{lecturer: &models.Lecturer{
		ID: "lec-1", Email: "jane@uni.edu", HourlyRate: decimal.RequireFromString("670"), Active: true,
	}}
	handler := newClaimHandler(repo, resolver)

	body, contentType := multipartClaim(t, "20", map[string][]byte{"payload.exe": []byte("MZ")})
	c, w := newGinContext(http.MethodPost, "/claims", body, contentType)
	c.Set(middleware.ContextUserKey, lecturerPrincipal())

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, repo.created)
}

func TestClaimHandlerSubmitRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newClaimHandler(&claimRepoMock{}, &resolverMock{})

	body, contentType := multipartClaim(t, "20", nil)
	c, w := newGinContext(http.MethodPost, "/claims", body, contentType)

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestClaimHandlerListRejectsUnknownStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newClaimHandler(&claimRepoMock{claims: map[string]*models.Claim{}}, &resolverMock{})

	c, w := newGinContext(http.MethodGet, "/claims?status=SETTLED", nil, "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "hr", Role: models.RoleHR})

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotEmpty(t, envelope.Error.Code)
}
