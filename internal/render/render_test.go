package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetmap/sheetmap/internal/model"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("// sdk"))
	}))
	t.Cleanup(srv.Close)
	loader := NewLoader().WithHTTPClient(newRewriteClient(t, srv.URL))
	return NewRenderer("test-key", loader)
}

func testEntries(n int) []model.LocationEntry {
	all := []model.LocationEntry{
		{Name: "North", Lat: 45.0, Lng: -70.0},
		{Name: "South", Lat: 30.0, Lng: -80.0},
		{Name: "East", Lat: 40.0, Lng: -60.0},
	}
	return all[:n]
}

func TestBuildDocument_MultipleEntriesFitBounds(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.BuildDocument(context.Background(), testEntries(3), Options{ContainerID: "map", Zoom: 10})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, `id="map"`)
	assert.Contains(t, html, "map.fitBounds")
	// Bounds span all three points.
	assert.Contains(t, html, "south:  30")
	assert.Contains(t, html, "north:  45")
	assert.Contains(t, html, "west:  -80")
	assert.Contains(t, html, "east:  -60")
	assert.Contains(t, html, `"title":"North"`)
	assert.Contains(t, html, `"title":"South"`)
	assert.Contains(t, html, `"title":"East"`)
}

func TestBuildDocument_SingleEntryCentersWithoutFit(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.BuildDocument(context.Background(), testEntries(1), Options{ContainerID: "map", Zoom: 14})
	require.NoError(t, err)

	html := string(doc)
	assert.NotContains(t, html, "map.fitBounds")
	assert.Contains(t, html, "zoom:  14")
	assert.Contains(t, html, "lat:  45")
	assert.Contains(t, html, "lng:  -70")
}

func TestBuildDocument_NoEntriesShowsMessage(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.BuildDocument(context.Background(), nil, Options{ContainerID: "map", Zoom: 10})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, NoLocationsMessage)
	assert.NotContains(t, html, "map.fitBounds")
	assert.Contains(t, html, "SHEETMAP_MARKERS = []")
}

func TestBuildDocument_LegacyMarkerByDefault(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.BuildDocument(context.Background(), testEntries(1), Options{ContainerID: "map", Zoom: 10})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, "new google.maps.Marker(")
	assert.NotContains(t, html, "AdvancedMarkerElement")
	assert.NotContains(t, html, "mapId")
	assert.NotContains(t, html, "libraries=marker")
}

func TestBuildDocument_AdvancedMarkerWithMapID(t *testing.T) {
	r := newTestRenderer(t)

	doc, err := r.BuildDocument(context.Background(), testEntries(1), Options{ContainerID: "map", Zoom: 10, MapID: "styled-map"})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, "AdvancedMarkerElement")
	assert.NotContains(t, html, "new google.maps.Marker(")
	assert.Contains(t, html, `mapId: "styled-map"`)
	assert.Contains(t, html, "libraries=marker")
}

func TestBuildDocument_MarkerPayloadHTMLEscaped(t *testing.T) {
	r := newTestRenderer(t)

	entries := []model.LocationEntry{{Name: "</script><script>alert(1)", Lat: 1, Lng: 2}}

	doc, err := r.BuildDocument(context.Background(), entries, Options{ContainerID: "map", Zoom: 10})
	require.NoError(t, err)

	// json.Marshal unicode-escapes angle brackets, so the payload cannot
	// terminate the surrounding script element.
	escapedName, err := json.Marshal(entries[0].Name)
	require.NoError(t, err)

	html := string(doc)
	assert.NotContains(t, html, `"title":"</script>`)
	assert.Contains(t, html, `"title":`+string(escapedName))
}

func TestBuildDocument_BootstrapFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	loader := NewLoader().WithHTTPClient(newRewriteClient(t, srv.URL))
	r := NewRenderer("bad-key", loader)

	_, err := r.BuildDocument(context.Background(), testEntries(1), Options{ContainerID: "map", Zoom: 10})
	assert.Error(t, err)
}

func TestBuildViewport(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		vp := buildViewport(nil, 10)
		assert.Equal(t, viewport{Zoom: 10}, vp)
	})

	t.Run("single", func(t *testing.T) {
		vp := buildViewport(testEntries(1), 12)
		assert.False(t, vp.FitBounds)
		assert.InDelta(t, 45.0, vp.CenterLat, 0.0001)
		assert.InDelta(t, -70.0, vp.CenterLng, 0.0001)
		assert.Equal(t, 12, vp.Zoom)
	})

	t.Run("multiple", func(t *testing.T) {
		vp := buildViewport(testEntries(3), 10)
		assert.True(t, vp.FitBounds)
		assert.InDelta(t, 30.0, vp.South, 0.0001)
		assert.InDelta(t, 45.0, vp.North, 0.0001)
		assert.InDelta(t, -80.0, vp.West, 0.0001)
		assert.InDelta(t, -60.0, vp.East, 0.0001)
	})
}

func TestStaticErrorDocument(t *testing.T) {
	doc := StaticErrorDocument("map")

	html := string(doc)
	assert.Contains(t, html, `id="map"`)
	assert.Contains(t, html, UnableToLoadMessage)
	assert.NotContains(t, html, "<script")
}
