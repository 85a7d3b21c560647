package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
)

const (
	baseURL   = "http://localhost:8080/api/v1"
	accountID = "11111111-1111-1111-1111-111111111111"
)

type StatusResponse struct {
	Running        bool           `json:"running"`
	Paused         bool           `json:"paused"`
	ActiveAccounts int            `json:"active_accounts"`
	ActiveSessions int            `json:"active_sessions"`
	QueueDepth     int64          `json:"queue_depth"`
	HealthScores   map[string]int `json:"health_scores"`
}

type SettingsRequest struct {
	MaxConcurrentSessions *int `json:"max_concurrent_sessions,omitempty"`
	MaxPostsPerDay        *int `json:"max_posts_per_day,omitempty"`
	MinDelaySeconds       *int `json:"min_delay_seconds,omitempty"`
	MaxDelaySeconds       *int `json:"max_delay_seconds,omitempty"`
}

type AccountInfo struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Status       string `json:"status"`
	IsRunning    bool   `json:"is_running"`
	ProfileState string `json:"profile_state"`
}

type AccountListResponse struct {
	Accounts []AccountInfo `json:"accounts"`
	Total    int           `json:"total"`
}

// Helper to POST a control endpoint with no body
func postControl(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Post(baseURL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("Failed to POST %s: %v", path, err)
	}
	return resp
}

func getStatus(t *testing.T) StatusResponse {
	t.Helper()

	resp, err := http.Get(baseURL + "/orchestrator/status")
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	return status
}

// TestOrchestratorLifecycle tests start/stop/pause/resume transitions
func TestOrchestratorLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	t.Run("start orchestrator", func(t *testing.T) {
		resp := postControl(t, "/orchestrator/start")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
		}

		status := getStatus(t)
		if !status.Running {
			t.Error("Expected orchestrator to be running")
		}

		t.Logf("Started: running=%v sessions=%d queue=%d", status.Running, status.ActiveSessions, status.QueueDepth)
	})

	t.Run("double start returns conflict", func(t *testing.T) {
		resp := postControl(t, "/orchestrator/start")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", resp.StatusCode)
		}
	})

	t.Run("pause and resume", func(t *testing.T) {
		resp := postControl(t, "/orchestrator/pause")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200 on pause, got %d", resp.StatusCode)
		}

		status := getStatus(t)
		if !status.Paused {
			t.Error("Expected orchestrator to be paused")
		}

		resp = postControl(t, "/orchestrator/resume")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200 on resume, got %d", resp.StatusCode)
		}

		status = getStatus(t)
		if status.Paused {
			t.Error("Expected orchestrator to be resumed")
		}
	})

	t.Run("stop orchestrator", func(t *testing.T) {
		resp := postControl(t, "/orchestrator/stop")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
		}

		status := getStatus(t)
		if status.Running {
			t.Error("Expected orchestrator to be stopped")
		}
		if status.ActiveSessions != 0 {
			t.Errorf("Expected 0 active sessions after stop, got %d", status.ActiveSessions)
		}
	})

	t.Run("stop when not running returns conflict", func(t *testing.T) {
		resp := postControl(t, "/orchestrator/stop")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Errorf("Expected status 409, got %d", resp.StatusCode)
		}
	})
}

// TestOrchestratorStatus tests GET /orchestrator/status
func TestOrchestratorStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	status := getStatus(t)

	for _, dep := range []string{"profile-provider", "media-store", "publisher"} {
		score, ok := status.HealthScores[dep]
		if !ok {
			t.Errorf("Expected health score for %s", dep)
			continue
		}
		if score < 0 || score > 100 {
			t.Errorf("Health score for %s out of range: %d", dep, score)
		}
	}

	t.Logf("Status: running=%v accounts=%d queue=%d scores=%v",
		status.Running, status.ActiveAccounts, status.QueueDepth, status.HealthScores)
}

// TestOrchestratorSettings tests PUT /orchestrator/settings
func TestOrchestratorSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	putSettings := func(t *testing.T, req SettingsRequest) *http.Response {
		t.Helper()

		body, _ := json.Marshal(req)
		httpReq, _ := http.NewRequest(http.MethodPut, baseURL+"/orchestrator/settings", bytes.NewReader(body))
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(httpReq)
		if err != nil {
			t.Fatalf("Failed to update settings: %v", err)
		}
		return resp
	}

	t.Run("update delays", func(t *testing.T) {
		min, max := 60, 300
		resp := putSettings(t, SettingsRequest{MinDelaySeconds: &min, MaxDelaySeconds: &max})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			respBody, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 204, got %d: %s", resp.StatusCode, string(respBody))
		}
	})

	t.Run("inverted delay bounds fail", func(t *testing.T) {
		min, max := 300, 60
		resp := putSettings(t, SettingsRequest{MinDelaySeconds: &min, MaxDelaySeconds: &max})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
	})

	t.Run("zero daily limit fails", func(t *testing.T) {
		zero := 0
		resp := putSettings(t, SettingsRequest{MaxPostsPerDay: &zero})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", resp.StatusCode)
		}
	})
}

// TestAccountControl tests POST /accounts/{id}/run and /halt
func TestAccountControl(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	t.Run("run account", func(t *testing.T) {
		resp := postControl(t, fmt.Sprintf("/accounts/%s/run", accountID))
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
		}

		getResp, err := http.Get(fmt.Sprintf("%s/accounts/%s", baseURL, accountID))
		if err != nil {
			t.Fatalf("Failed to get account: %v", err)
		}
		defer getResp.Body.Close()

		var acc AccountInfo
		json.NewDecoder(getResp.Body).Decode(&acc)

		if !acc.IsRunning {
			t.Error("Expected account to be running")
		}
		if acc.ProfileState != "created" {
			t.Errorf("Expected profile state 'created', got '%s'", acc.ProfileState)
		}

		t.Logf("Account running: ID=%s, ProfileState=%s", acc.ID, acc.ProfileState)
	})

	t.Run("halt account", func(t *testing.T) {
		resp := postControl(t, fmt.Sprintf("/accounts/%s/halt", accountID))
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("run unknown account returns 404", func(t *testing.T) {
		resp := postControl(t, "/accounts/non-existent-id/run")
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", resp.StatusCode)
		}
	})
}

// TestAccountList tests GET /accounts
func TestAccountList(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	resp, err := http.Get(baseURL + "/accounts")
	if err != nil {
		t.Fatalf("Failed to list accounts: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var listResp AccountListResponse
	json.NewDecoder(resp.Body).Decode(&listResp)

	t.Logf("Listed %d accounts", listResp.Total)
}
