package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elidickinson/shot-power-scraper/internal/render/netbus"
)

func docResponse(id, url string, status int) netbus.Event {
	return netbus.Event{
		Kind:         netbus.ResponseReceived,
		RequestID:    id,
		URL:          url,
		ResourceType: netbus.ResourceDocument,
		Response:     &netbus.ResponseInfo{Status: status},
	}
}

// assertUnresolved expects Await to time out right away
func assertUnresolved(t *testing.T, tracker *ResponseTracker) {
	t.Helper()
	_, err := tracker.Await(context.Background(), 10*time.Millisecond)
	var timeout *ConditionTimeoutError
	assert.ErrorAs(t, err, &timeout)
}

func TestResponseTracker_FirstDocumentWins(t *testing.T) {
	bus := netbus.NewBus()
	tracker := NewResponseTracker(bus)
	defer tracker.Close()

	bus.Publish(netbus.Event{Kind: netbus.ResponseReceived, RequestID: "img", ResourceType: "Image",
		Response: &netbus.ResponseInfo{Status: 500}})
	assertUnresolved(t, tracker)

	bus.Publish(docResponse("1", "https://example.com/", 200))
	bus.Publish(docResponse("2", "https://example.com/frame", 404))

	resp, err := tracker.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "https://example.com/", resp.URL)
	assert.Equal(t, "1", resp.RequestID)
}

func TestResponseTracker_URLFromRequestStarted(t *testing.T) {
	bus := netbus.NewBus()
	tracker := NewResponseTracker(bus)
	defer tracker.Close()

	bus.Publish(netbus.Event{Kind: netbus.RequestStarted, RequestID: "1", URL: "https://example.com/a", ResourceType: netbus.ResourceDocument})
	bus.Publish(docResponse("1", "", 301))

	resp, err := tracker.Await(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", resp.URL)
}

func TestResponseTracker_DocumentFailure(t *testing.T) {
	bus := netbus.NewBus()
	tracker := NewResponseTracker(bus)
	defer tracker.Close()

	bus.Publish(netbus.Event{Kind: netbus.RequestStarted, RequestID: "1", URL: "https://nope.invalid/", ResourceType: netbus.ResourceDocument})
	// A failing subresource is not the document
	bus.Publish(netbus.Event{Kind: netbus.LoadingFailed, RequestID: "9", ErrorText: "net::ERR_BLOCKED_BY_CLIENT"})
	assertUnresolved(t, tracker)

	bus.Publish(netbus.Event{Kind: netbus.LoadingFailed, RequestID: "1", ErrorText: "net::ERR_NAME_NOT_RESOLVED"})

	_, err := tracker.Await(context.Background(), time.Second)
	var transport *NavigationTransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "https://nope.invalid/", transport.URL)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", transport.Reason)

	// Resolution is final
	bus.Publish(docResponse("1", "https://nope.invalid/", 200))
	_, err = tracker.Await(context.Background(), time.Second)
	assert.ErrorAs(t, err, &transport)
}

func TestResponseTracker_Timeout(t *testing.T) {
	bus := netbus.NewBus()
	tracker := NewResponseTracker(bus)
	defer tracker.Close()

	_, err := tracker.Await(context.Background(), 30*time.Millisecond)
	var timeout *ConditionTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "main document response", timeout.Predicate)
}

func TestResponseTracker_CloseUnsubscribes(t *testing.T) {
	bus := netbus.NewBus()
	tracker := NewResponseTracker(bus)
	assert.Equal(t, 1, bus.Len())
	tracker.Close()
	tracker.Close()
	assert.Equal(t, 0, bus.Len())

	bus.Publish(docResponse("1", "https://example.com/", 200))
	assertUnresolved(t, tracker)
}
