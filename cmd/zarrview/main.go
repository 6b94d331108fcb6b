// Command zarrview is a minimal reference host: it drives one
// zarrlayer.Layer from an Ebitengine game loop, standing in for a
// browser-hosted Mapbox/MapLibre/CesiumJS map.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/zarrview/zarrlayer/layer"
	"github.com/zarrview/zarrlayer/maputil"
)

type game struct {
	layer    *layer.Layer
	viewport layer.Viewport
	lastTick time.Time
}

func (g *game) Update() error {
	now := time.Now()
	dt := float32(0)
	if !g.lastTick.IsZero() {
		dt = float32(now.Sub(g.lastTick).Seconds())
	}
	g.lastTick = now
	return g.layer.Prerender(context.Background(), g.viewport, dt)
}

func (g *game) Draw(screen *ebiten.Image) {
	if err := g.layer.Render(screen, g.viewport); err != nil {
		log.Printf("zarrview: render error: %v", err)
	}
}

func (g *game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func main() {
	url := flag.String("url", "", "base URL of the Zarr dataset to display")
	band := flag.String("band", "value", "name of the display band (drawn from band index 0)")
	flag.Parse()
	if *url == "" {
		log.Fatal("zarrview: -url is required")
	}

	l, err := layer.New(layer.Options{
		URL:            *url,
		Bands:          []string{*band},
		BandRanges:     map[string][2]float64{*band: {0, 1}},
		MaxCachedTiles: 64,
		MaxGPUTiles:    64,
		Logger:         slog.Default(),
	})
	if err != nil {
		log.Fatalf("zarrview: %v", err)
	}
	ctx := context.Background()
	if err := l.OnAdd(ctx, http.DefaultClient); err != nil {
		log.Fatalf("zarrview: failed to open dataset: %v", err)
	}
	defer l.OnRemove()

	g := &game{
		layer: l,
		viewport: layer.Viewport{
			Bounds:   maputil.Bounds{West: -180, South: -85, East: 180, North: 85},
			Zoom:     2,
			TileSize: 256,
		},
	}

	ebiten.SetWindowSize(1024, 768)
	ebiten.SetWindowTitle("zarrview")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
