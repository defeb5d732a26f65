package motion

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSimServer(t *testing.T, cfg SimConfig) string {
	t.Helper()
	srv := httptest.NewServer(NewActionServer(NewSim(cfg)))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startClient(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(Config{URL: url, ConnectTimeout: time.Second})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitTerminal(t *testing.T, g *Goal) Outcome {
	t.Helper()
	select {
	case <-g.Done():
		return g.Outcome()
	case <-time.After(5 * time.Second):
		t.Fatalf("goal %s never reached a terminal outcome (currently %s)", g.ID, g.Outcome())
		return OutcomePending
	}
}

func TestClient_GoalSucceeds(t *testing.T) {
	url := startSimServer(t, SimConfig{})
	c := startClient(t, url)

	g := c.Send(0.1, 0.2, 0.3)

	assert.Equal(t, OutcomeSucceeded, waitTerminal(t, g))
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, g.Position)
}

func TestClient_GoalRejectedOutsideWorkspace(t *testing.T) {
	url := startSimServer(t, SimConfig{Reach: 0.5})
	c := startClient(t, url)

	g := c.Send(1, 1, 1)

	assert.Equal(t, OutcomeRejected, waitTerminal(t, g))
}

func TestClient_GoalExecutionFailureReported(t *testing.T) {
	url := startSimServer(t, SimConfig{FailEvery: 1})
	c := startClient(t, url)

	g := c.Send(0, 0, 0)

	// Accepted first, then the result reports failure.
	assert.Equal(t, OutcomeFailed, waitTerminal(t, g))
}

func TestClient_ServiceUnreachable(t *testing.T) {
	c := NewClient(Config{
		URL:            "ws://127.0.0.1:1/goals",
		ConnectTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { c.Close() })

	g := c.Send(0, 0, 0)

	// Degrade-and-send: after the bounded reachability wait the send is
	// attempted anyway, fails, and the goal resolves without retry.
	assert.Equal(t, OutcomeFailed, waitTerminal(t, g))
}

func TestClient_MultipleInFlightGoalsAreIndependent(t *testing.T) {
	url := startSimServer(t, SimConfig{Delay: 50 * time.Millisecond})
	c := startClient(t, url)

	goals := make([]*Goal, 5)
	for i := range goals {
		goals[i] = c.Send(float64(i)*0.01, 0, 0)
	}

	for _, g := range goals {
		assert.Equal(t, OutcomeSucceeded, waitTerminal(t, g))
	}
}

func TestClient_Connected(t *testing.T) {
	url := startSimServer(t, SimConfig{})
	c := startClient(t, url)

	require.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond)
}
