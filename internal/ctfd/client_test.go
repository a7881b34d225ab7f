package ctfd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCTFd struct {
	mu       sync.Mutex
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
	requests []*http.Request
}

func newFakeCTFd(t *testing.T) (*fakeCTFd, *Client) {
	t.Helper()
	f := &fakeCTFd{routes: map[string]func(http.ResponseWriter, *http.Request){}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, r)
		h, ok := f.routes[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "ctfd_secret", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return f, client
}

func (f *fakeCTFd) json(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (o *recordingObserver) ObserveUpstreamRequest(endpoint, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[endpoint] = outcome
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "http://ctf.example"})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://ctf.example/api/v1/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://ctf.example", c.baseURL)
	assert.Equal(t, "Token k", c.authHeader)
}

func TestRequestHeaders(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/challenges", http.StatusOK, `{"success": true, "data": []}`)

	_, err := client.FetchChallenges(context.Background())
	require.NoError(t, err)

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "Token ctfd_secret", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestFetchTopTeams(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/scoreboard", http.StatusOK, `{"success": true, "data": [
		{"pos": 1, "account_id": 7, "name": "A*Team", "score": 500},
		{"pos": 2, "account_id": 3, "name": "B", "score": 300},
		{"pos": 3, "account_id": 9, "name": "C", "score": 100}
	]}`)

	teams, err := client.FetchTopTeams(context.Background(), 2)
	require.NoError(t, err)

	want := []TeamStanding{
		{Pos: 1, AccountID: 7, Name: "A*Team", Score: 500},
		{Pos: 2, AccountID: 3, Name: "B", Score: 300},
	}
	if diff := cmp.Diff(want, teams); diff != "" {
		t.Errorf("FetchTopTeams mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchTopTeamsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `oops`},
		{name: "malformed json", status: http.StatusOK, body: `{"success": tru`, wantErr: ErrMalformedResponse},
		{name: "success false", status: http.StatusOK, body: `{"success": false, "data": []}`, wantErr: ErrUnsuccessful},
		{name: "success missing", status: http.StatusOK, body: `{"data": []}`, wantErr: ErrUnsuccessful},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client := newFakeCTFd(t)
			f.json("/api/v1/scoreboard", tt.status, tt.body)

			teams, err := client.FetchTopTeams(context.Background(), 10)
			require.Error(t, err)
			assert.Nil(t, teams)
			assert.True(t, IsUpstreamError(err))

			var ue *UpstreamError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, "scoreboard", ue.Op)
			assert.Equal(t, tt.status, ue.StatusCode)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFetchChallenges(t *testing.T) {
	t.Run("upstream order preserved", func(t *testing.T) {
		f, client := newFakeCTFd(t)
		f.json("/api/v1/challenges", http.StatusOK, `{"success": true, "data": [
			{"id": 9, "name": "web1", "category": "web", "value": 100},
			{"id": 1, "name": "pwn1", "category": "pwn", "value": 200}
		]}`)

		challenges, err := client.FetchChallenges(context.Background())
		require.NoError(t, err)
		require.Len(t, challenges, 2)
		assert.Equal(t, int64(9), challenges[0].ID)
		assert.Equal(t, "pwn1", challenges[1].Name)
	})

	t.Run("blank body is empty", func(t *testing.T) {
		f, client := newFakeCTFd(t)
		f.json("/api/v1/challenges", http.StatusOK, "  \n")

		challenges, err := client.FetchChallenges(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, challenges)
		assert.Empty(t, challenges)
	})

	t.Run("forbidden", func(t *testing.T) {
		f, client := newFakeCTFd(t)
		f.json("/api/v1/challenges", http.StatusForbidden, `{"success": false}`)

		_, err := client.FetchChallenges(context.Background())
		require.Error(t, err)
		assert.True(t, IsUpstreamError(err))
	})
}

func TestFetchSolves(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/challenges/1/solves", http.StatusOK, `{"success": true, "data": [
		{"account_id": 4, "name": "TeamA", "date": "2024-01-01T10:00:00Z"},
		{"account_id": 5, "name": "TeamB", "date": "2024-01-01T11:00:00Z"}
	]}`)
	f.json("/api/v1/challenges/2/solves", http.StatusOK, `{"success": true, "data": []}`)

	solves, err := client.FetchSolves(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, solves, 2)
	assert.Equal(t, "TeamA", solves[0].Name)

	solves, err = client.FetchSolves(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, solves)

	_, err = client.FetchSolves(context.Background(), 3)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusNotFound, ue.StatusCode)
}

func TestTransportError(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.FetchChallenges(context.Background())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 0, ue.StatusCode)
}

func TestObserverOutcomes(t *testing.T) {
	f, client := newFakeCTFd(t)
	obs := &recordingObserver{outcomes: map[string]string{}}
	client.observer = obs

	f.json("/api/v1/challenges", http.StatusOK, `{"success": true, "data": []}`)
	f.json("/api/v1/scoreboard", http.StatusBadGateway, ``)

	_, _ = client.FetchChallenges(context.Background())
	_, _ = client.FetchTopTeams(context.Background(), 10)

	assert.Equal(t, OutcomeOK, obs.outcomes["challenges"])
	assert.Equal(t, OutcomeHTTPError, obs.outcomes["scoreboard"])
}

func TestFetchConfig(t *testing.T) {
	t.Run("list of key value rows", func(t *testing.T) {
		f, client := newFakeCTFd(t)
		f.json("/api/v1/configs", http.StatusOK, `{"success": true, "data": [
			{"id": 1, "key": "ctf_name", "value": "HackFest"},
			{"id": 2, "key": "start", "value": "1700000000"}
		]}`)

		cfg := client.FetchConfig(context.Background())
		assert.Equal(t, "HackFest", cfg.String("ctf_name"))
		assert.Equal(t, "1700000000", cfg.String("start"))
	})

	t.Run("falls back to /config object", func(t *testing.T) {
		f, client := newFakeCTFd(t)
		f.json("/api/v1/configs", http.StatusForbidden, `{"success": false}`)
		f.json("/api/v1/config", http.StatusOK, `{"success": true, "data": {"name": "Fallback", "end": 1700003600}}`)

		cfg := client.FetchConfig(context.Background())
		assert.Equal(t, "Fallback", cfg.String("name"))
		assert.Equal(t, "1700003600", cfg.String("end"))
		assert.Equal(t, "", cfg.String("missing"))
	})

	t.Run("degrades to empty", func(t *testing.T) {
		_, client := newFakeCTFd(t)
		cfg := client.FetchConfig(context.Background())
		assert.NotNil(t, cfg)
		assert.Empty(t, cfg)
	})
}

func TestFetchAllTeamsFollowsPagination(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.mu.Lock()
	f.routes["/api/v1/teams"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"success": true, "data": [{"id": 3, "name": "C"}],
				"meta": {"pagination": {"page": 2, "next": null, "pages": 2, "total": 3}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": [{"id": 1, "name": "A"}, {"id": 2, "name": "B"}],
			"meta": {"pagination": {"page": 1, "next": 2, "pages": 2, "total": 3}}}`))
	}
	f.mu.Unlock()

	teams := client.FetchAllTeams(context.Background())
	want := []Account{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}
	if diff := cmp.Diff(want, teams); diff != "" {
		t.Errorf("FetchAllTeams mismatch (-want +got):\n%s", diff)
	}
}

// chainedSubmissions serves n pages of one correct submission each.
func chainedSubmissions(f *fakeCTFd, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes["/api/v1/submissions"] = func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		next := "null"
		if page < n {
			next = strconv.Itoa(page + 1)
		}
		fmt.Fprintf(w, `{"success": true, "data": [{"id": %d, "challenge_id": 1, "type": "correct"}],
			"meta": {"pagination": {"page": %d, "next": %s, "pages": %d, "total": %d}}}`, page, page, next, n, n)
	}
}

func TestFetchSubmissionsReadsEveryPage(t *testing.T) {
	f, client := newFakeCTFd(t)
	chainedSubmissions(f, 150)

	subs := client.FetchSubmissionsByType(context.Background(), "correct")
	assert.Len(t, subs, 150)
	assert.Equal(t, "100", f.requests[0].URL.Query().Get("per_page"))
}

func TestPageLimitIsAnError(t *testing.T) {
	f, client := newFakeCTFd(t)
	client.maxPages = 100
	chainedSubmissions(f, 150)

	_, err := getAllPages[Submission](context.Background(), client, "submissions", "/submissions", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageLimit)
	assert.True(t, IsUpstreamError(err))

	// best-effort callers degrade to empty rather than report 100 of 150
	assert.Empty(t, client.FetchSubmissionsByType(context.Background(), "correct"))
}

func TestPaginationGoingBackwardsIsMalformed(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/teams", http.StatusOK, `{"success": true, "data": [{"id": 1, "name": "A"}],
		"meta": {"pagination": {"page": 1, "next": 1, "pages": 2, "total": 2}}}`)

	_, err := getAllPages[Account](context.Background(), client, "teams", "/teams", nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestFetchSubmissionsByType(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.mu.Lock()
	f.routes["/api/v1/submissions"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "correct" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": [{"id": 1, "challenge_id": 4, "type": "correct"}]}`))
	}
	f.mu.Unlock()

	subs := client.FetchSubmissionsByType(context.Background(), "correct")
	require.Len(t, subs, 1)
	assert.Equal(t, int64(4), subs[0].ChallengeID)

	assert.Empty(t, client.FetchAllSubmissions(context.Background()))
}

func TestFetchComprehensiveStatisticsPartialFailure(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/statistics/challenges/solves", http.StatusOK,
		`{"success": true, "data": [{"id": 1, "name": "pwn1", "solves": 3}, {"id": 2, "name": "web1", "solves": 4}]}`)
	f.json("/api/v1/statistics/teams", http.StatusInternalServerError, ``)
	f.json("/api/v1/statistics/challenges", http.StatusOK, `{"success": true, "data": {"1": 0.5}}`)
	f.json("/api/v1/statistics/submissions", http.StatusOK, `{"success": false}`)

	stats := client.FetchComprehensiveStatistics(context.Background())
	assert.False(t, stats.Empty())
	assert.Nil(t, stats.Teams)
	assert.Nil(t, stats.Submissions)
	assert.NotNil(t, stats.Challenges)

	total, ok := stats.TotalSolves()
	assert.True(t, ok)
	assert.Equal(t, 7, total)
}

func TestStatisticsTotalSolvesMapShape(t *testing.T) {
	stats := Statistics{ChallengeSolves: map[string]any{"pwn1": 2.0, "web1": 5.0}}
	total, ok := stats.TotalSolves()
	assert.True(t, ok)
	assert.Equal(t, 7, total)

	_, ok = Statistics{}.TotalSolves()
	assert.False(t, ok)
	assert.True(t, Statistics{}.Empty())
}

func TestPing(t *testing.T) {
	f, client := newFakeCTFd(t)
	f.json("/api/v1/challenges", http.StatusOK, ``)
	assert.NoError(t, client.Ping(context.Background()))

	f.json("/api/v1/challenges", http.StatusUnauthorized, `{"message": "nope"}`)
	assert.Error(t, client.Ping(context.Background()))
}
