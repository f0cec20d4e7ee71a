// Package render builds the embeddable interactive map document.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sheetmap/sheetmap/internal/model"
)

// NoLocationsMessage is shown when no row resolved to a renderable entry.
const NoLocationsMessage = "No valid locations to display."

// UnableToLoadMessage is the terminal user-visible state for fatal failures.
const UnableToLoadMessage = "Unable to load map data."

// Options controls a single render. The marker variant is chosen per render
// from MapID; mixed variants within one document are not supported.
type Options struct {
	ContainerID string
	Zoom        int
	MapID       string
}

// Renderer builds map documents against a resolved SDK bootstrap.
type Renderer struct {
	apiKey string
	loader *Loader
}

// NewRenderer creates a Renderer.
func NewRenderer(apiKey string, loader *Loader) *Renderer {
	return &Renderer{apiKey: apiKey, loader: loader}
}

// marker is the per-entry payload embedded in the document.
type marker struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Title string  `json:"title"`
	Popup string  `json:"popup"`
}

type viewport struct {
	CenterLat float64
	CenterLng float64
	Zoom      int
	FitBounds bool
	South     float64
	West      float64
	North     float64
	East      float64
}

type docData struct {
	ContainerID string
	MapID       string
	Advanced    bool
	ScriptURL   string
	MarkersJSON template.JS
	Viewport    viewport
	Message     string
}

// BuildDocument renders a self-contained HTML document with one marker per
// entry. An SDK bootstrap failure is fatal; entry-level popup failures are
// not possible once entries exist (popup building is deterministic), so the
// only non-fatal branch is the zero-entry document, which keeps the initial
// view and shows the no-locations message.
func (r *Renderer) BuildDocument(ctx context.Context, entries []model.LocationEntry, opts Options) ([]byte, error) {
	advanced := opts.MapID != ""

	bootstrap, err := r.loader.Resolve(ctx, r.apiKey, advanced)
	if err != nil {
		return nil, eris.Wrap(err, "render: resolve sdk bootstrap")
	}

	markers := make([]marker, 0, len(entries))
	for _, e := range entries {
		popup, err := BuildPopupHTML(e)
		if err != nil {
			return nil, err
		}
		markers = append(markers, marker{Lat: e.Lat, Lng: e.Lng, Title: e.Name, Popup: popup})
	}

	// json.Marshal escapes <, > and & so the payload stays inert inside the
	// inline script element.
	markersJSON, err := json.Marshal(markers)
	if err != nil {
		return nil, eris.Wrap(err, "render: marshal markers")
	}

	data := docData{
		ContainerID: opts.ContainerID,
		MapID:       opts.MapID,
		Advanced:    advanced,
		ScriptURL:   bootstrap.ScriptURL,
		MarkersJSON: template.JS(markersJSON), //nolint:gosec // marshaled above with HTML escaping
		Viewport:    buildViewport(entries, opts.Zoom),
	}
	if len(entries) == 0 {
		data.Message = NoLocationsMessage
	}

	var buf bytes.Buffer
	if err := docTmpl.Execute(&buf, data); err != nil {
		return nil, eris.Wrap(err, "render: execute document template")
	}

	zap.L().Info("render: document built",
		zap.Int("markers", len(markers)),
		zap.Bool("advanced_markers", advanced),
	)
	return buf.Bytes(), nil
}

// buildViewport centers on the first entry (neutral origin when empty),
// accumulating bounds across all entries. More than one entry fits the
// viewport to the bounds; exactly one centers and zooms explicitly; zero
// leaves the initial view unchanged.
func buildViewport(entries []model.LocationEntry, zoom int) viewport {
	vp := viewport{Zoom: zoom}
	if len(entries) == 0 {
		return vp
	}

	vp.CenterLat = entries[0].Lat
	vp.CenterLng = entries[0].Lng

	if len(entries) < 2 {
		return vp
	}

	bounds := geom.NewBounds(geom.XY)
	for _, e := range entries {
		bounds = bounds.Extend(geom.NewPointFlat(geom.XY, []float64{e.Lng, e.Lat}))
	}
	vp.FitBounds = true
	vp.West = bounds.Min(0)
	vp.South = bounds.Min(1)
	vp.East = bounds.Max(0)
	vp.North = bounds.Max(1)
	return vp
}

// StaticErrorDocument is the fallback page served when a run fails at the
// configuration, fetch, or capability level.
func StaticErrorDocument(containerID string) []byte {
	data := struct {
		ContainerID string
		Message     string
	}{ContainerID: containerID, Message: UnableToLoadMessage}

	var buf bytes.Buffer
	if err := errTmpl.Execute(&buf, data); err != nil {
		// Template is static and data is two strings; keep a hard fallback
		// anyway so callers always get a document.
		return []byte("<!DOCTYPE html><html><body><p>" + UnableToLoadMessage + "</p></body></html>")
	}
	return buf.Bytes()
}

var errTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Map unavailable</title></head>
<body>
<div id="{{.ContainerID}}" class="sheetmap-error"><p>{{.Message}}</p></div>
</body>
</html>
`))

var docTmpl = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Map</title>
<style>
html, body, #{{.ContainerID}} { height: 100%; margin: 0; padding: 0; }
.sheetmap-message { position: absolute; top: 8px; left: 50%; transform: translateX(-50%);
  background: #fff; padding: 6px 12px; border-radius: 4px; font-family: sans-serif;
  box-shadow: 0 1px 4px rgba(0,0,0,.3); z-index: 10; }
</style>
</head>
<body>
<div id="{{.ContainerID}}"></div>
{{if .Message}}<div class="sheetmap-message">{{.Message}}</div>{{end}}
<script>
var SHEETMAP_MARKERS = {{.MarkersJSON}};
function __sheetmapInit() {
  var container = document.getElementById({{.ContainerID}});
  if (!container) { return; }
  var map = new google.maps.Map(container, {
    zoom: {{.Viewport.Zoom}},
    center: { lat: {{.Viewport.CenterLat}}, lng: {{.Viewport.CenterLng}} }{{if .MapID}},
    mapId: {{.MapID}}{{end}}
  });
  var infoWindow = new google.maps.InfoWindow();
  SHEETMAP_MARKERS.forEach(function (m) {
    var position = { lat: m.lat, lng: m.lng };
    var pin;
{{if .Advanced}}    pin = new google.maps.marker.AdvancedMarkerElement({ map: map, position: position, title: m.title });
{{else}}    pin = new google.maps.Marker({ map: map, position: position, title: m.title });
{{end}}    pin.addListener("click", function () {
      infoWindow.setContent(m.popup);
      infoWindow.open({ anchor: pin, map: map });
    });
  });
{{if .Viewport.FitBounds}}  map.fitBounds({ south: {{.Viewport.South}}, west: {{.Viewport.West}}, north: {{.Viewport.North}}, east: {{.Viewport.East}} });
{{end}}}
window.__sheetmapInit = __sheetmapInit;
</script>
<script async src="{{.ScriptURL}}"></script>
</body>
</html>
`))
