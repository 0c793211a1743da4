package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vncsmyrnk/livepoll/internal/adapters/broadcast"
	repo "github.com/vncsmyrnk/livepoll/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"github.com/vncsmyrnk/livepoll/internal/core/services"
)

type TestApp struct {
	DB          *sql.DB
	Server      *httptest.Server
	Client      *http.Client
	AuditSvc    ports.AuditService
	DBContainer testcontainers.Container
}

func setupPostgresContainer(ctx context.Context) (testcontainers.Container, string, error) {
	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", err
	}

	return pgContainer, connStr, nil
}

func setupPostgresApp(t *testing.T) *TestApp {
	ctx := context.Background()
	dbContainer, dbURL, err := setupPostgresContainer(ctx)
	require.NoError(t, err)

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(ctx, db))

	pollRepo := repo.NewPollRepository(db, nil)
	hub := broadcast.NewHub(nil)
	clock := ports.SystemClock{}

	pollSvc := services.NewPollService(pollRepo, hub, clock, nil)
	voteSvc := services.NewVoteService(pollRepo, hub, clock, services.DefaultRetryPolicy(), nil)

	router := NewHandler(
		NewPollHandler(pollSvc, clock, "postgres", nil),
		NewVoteHandler(voteSvc, clock, nil),
		NewWSHandler(pollSvc, hub, clock, 16, []string{"*"}, nil),
		[]string{"*"},
		nil,
	)
	server := httptest.NewServer(router)

	return &TestApp{
		DB:          db,
		Server:      server,
		Client:      server.Client(),
		AuditSvc:    services.NewAuditService(pollRepo, nil),
		DBContainer: dbContainer,
	}
}

func (app *TestApp) Teardown(t *testing.T) {
	app.Server.Close()
	app.DB.Close()
	if err := app.DBContainer.Terminate(context.Background()); err != nil {
		t.Logf("failed to terminate container: %v", err)
	}
}

// TestPostgresPollFlow covers Create Poll -> Get Poll -> Vote -> Audit -> Delete on postgres.
func TestPostgresPollFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupPostgresApp(t)
	defer app.Teardown(t)

	// Step 1: Create a Poll
	body, _ := json.Marshal(map[string]interface{}{
		"question": "Favourite colour?",
		"options":  []string{"Red", "Blue"},
	})
	resp, err := app.Client.Post(app.Server.URL+"/api/polls", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created pollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Len(t, created.Options, 2)

	// Step 2: Cast Red, Red, Blue
	for _, i := range []int{0, 0, 1} {
		voteBody, _ := json.Marshal(map[string]interface{}{"option_id": created.Options[i].ID})
		resp, err = app.Client.Post(fmt.Sprintf("%s/api/polls/%s/vote", app.Server.URL, created.ID), "application/json", bytes.NewReader(voteBody))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Step 3: Get the Poll
	resp, err = app.Client.Get(fmt.Sprintf("%s/api/polls/%s", app.Server.URL, created.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched pollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fetched))
	resp.Body.Close()
	assert.Equal(t, int64(2), fetched.Options[0].Votes)
	assert.Equal(t, int64(1), fetched.Options[1].Votes)
	assert.Equal(t, int64(3), fetched.TotalVotes)

	// Step 4: Audit sees consistent tallies
	mismatches, err := app.AuditSvc.AuditAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	// Step 5: Delete
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/polls/%s", app.Server.URL, created.ID), nil)
	require.NoError(t, err)
	resp, err = app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var options int
	require.NoError(t, app.DB.QueryRow("SELECT COUNT(*) FROM poll_options WHERE poll_id = $1", created.ID).Scan(&options))
	assert.Zero(t, options)
}

// TestPostgresTallyAudit tampers with a counter directly and expects the audit to flag it.
func TestPostgresTallyAudit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	app := setupPostgresApp(t)
	defer app.Teardown(t)

	body, _ := json.Marshal(map[string]interface{}{
		"question": "Tampered?",
		"options":  []string{"Yes", "No"},
	})
	resp, err := app.Client.Post(app.Server.URL+"/api/polls", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	var poll pollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&poll))
	resp.Body.Close()

	_, err = app.DB.Exec(`UPDATE poll_options SET vote_count = 5 WHERE id = $1`, poll.Options[0].ID)
	require.NoError(t, err)

	mismatches, err := app.AuditSvc.AuditAll(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, poll.ID, mismatches[0].PollID)
	assert.Equal(t, int64(0), mismatches[0].TotalVotes)
	assert.Equal(t, int64(5), mismatches[0].CountedVotes)
}
