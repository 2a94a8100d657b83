package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthost/agenthost/internal/common/logger"
	"github.com/agenthost/agenthost/pkg/acp/protocol"
)

func testParams() protocol.RequestPermissionParams {
	return protocol.RequestPermissionParams{
		Message: "Allow running tests?",
		Options: []protocol.PermissionOption{
			{OptionID: "allow", Name: "Allow", Kind: "allow_once"},
			{OptionID: "reject", Name: "Reject", Kind: "reject_once"},
		},
	}
}

// request runs RequestPermission on a goroutine and returns the result
// channel plus the request id once the prompt fires.
func request(t *testing.T, h *Handler) (chan protocol.RequestPermissionResult, string) {
	t.Helper()
	results := make(chan protocol.RequestPermissionResult, 1)
	go func() {
		res, err := h.RequestPermission(context.Background(), testParams())
		if err != nil {
			t.Errorf("RequestPermission failed: %v", err)
		}
		results <- res
	}()

	var id string
	require.Eventually(t, func() bool {
		pendingID, _, ok := h.Pending()
		id = pendingID
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return results, id
}

func TestRespondResolvesWithOption(t *testing.T) {
	h := NewHandler(logger.NewNop())
	results, id := request(t, h)

	require.True(t, h.Respond(id, "allow"))

	res := <-results
	assert.Equal(t, protocol.PermissionOutcomeSelected, res.Outcome.Outcome)
	assert.Equal(t, "allow", res.Outcome.OptionID)

	// The suspension point is single-use.
	_, _, pending := h.Pending()
	assert.False(t, pending)
}

func TestTimeoutDenies(t *testing.T) {
	h := NewHandler(logger.NewNop(), WithTimeout(30*time.Millisecond))
	results, id := request(t, h)

	select {
	case res := <-results:
		assert.Equal(t, protocol.PermissionOutcomeCancelled, res.Outcome.Outcome)
		assert.Empty(t, res.Outcome.OptionID)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not time out")
	}

	// A late response is a no-op.
	assert.False(t, h.Respond(id, "allow"))
}

func TestRespondBeatsTimeout(t *testing.T) {
	h := NewHandler(logger.NewNop(), WithTimeout(500*time.Millisecond))
	results, id := request(t, h)

	require.True(t, h.Respond(id, "allow"))
	res := <-results
	assert.Equal(t, "allow", res.Outcome.OptionID)

	// Past the original deadline nothing fires twice; the channel stays
	// empty.
	time.Sleep(600 * time.Millisecond)
	select {
	case extra := <-results:
		t.Fatalf("second resolution arrived: %+v", extra)
	default:
	}
}

func TestDeny(t *testing.T) {
	h := NewHandler(logger.NewNop())
	results, id := request(t, h)

	require.True(t, h.Deny(id))
	res := <-results
	assert.Equal(t, protocol.PermissionOutcomeCancelled, res.Outcome.Outcome)
}

func TestCancelPending(t *testing.T) {
	h := NewHandler(logger.NewNop())
	results, _ := request(t, h)

	h.CancelPending()
	res := <-results
	assert.Equal(t, protocol.PermissionOutcomeCancelled, res.Outcome.Outcome)

	// Idempotent with nothing waiting.
	h.CancelPending()
}

func TestSecondRequestSupersedesFirst(t *testing.T) {
	h := NewHandler(logger.NewNop())
	first, _ := request(t, h)

	second := make(chan protocol.RequestPermissionResult, 1)
	go func() {
		res, _ := h.RequestPermission(context.Background(), testParams())
		second <- res
	}()

	// The first suspension resolves as a deny.
	select {
	case res := <-first:
		assert.Equal(t, protocol.PermissionOutcomeCancelled, res.Outcome.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("first request was not superseded")
	}

	// The second is still answerable.
	var id string
	require.Eventually(t, func() bool {
		pendingID, _, ok := h.Pending()
		id = pendingID
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, h.Respond(id, "reject"))
	res := <-second
	assert.Equal(t, "reject", res.Outcome.OptionID)
}

func TestRespondWrongID(t *testing.T) {
	h := NewHandler(logger.NewNop())
	results, id := request(t, h)

	assert.False(t, h.Respond("perm_other", "allow"))
	require.True(t, h.Respond(id, "allow"))
	<-results
}

func TestContextCancellation(t *testing.T) {
	h := NewHandler(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan protocol.RequestPermissionResult, 1)
	go func() {
		res, err := h.RequestPermission(ctx, testParams())
		if err != nil {
			t.Errorf("RequestPermission failed: %v", err)
		}
		results <- res
	}()
	require.Eventually(t, func() bool {
		_, _, ok := h.Pending()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case res := <-results:
		assert.Equal(t, protocol.PermissionOutcomeCancelled, res.Outcome.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not resolve the request")
	}
}

func TestPrompterReceivesRequest(t *testing.T) {
	prompted := make(chan string, 1)
	h := NewHandler(logger.NewNop(), WithPrompter(PrompterFunc(
		func(requestID string, params protocol.RequestPermissionParams) {
			prompted <- requestID
		})))

	results, id := request(t, h)

	select {
	case promptedID := <-prompted:
		assert.Equal(t, id, promptedID)
	case <-time.After(2 * time.Second):
		t.Fatal("prompter was not notified")
	}
	h.Respond(id, "allow")
	<-results
}
