// Package plot draws learning curves from training logs
package plot

import (
	"fmt"
	"image/color"
	"math"

	"github.com/fogleman/gg"
	"github.com/samuelfneumann/gotrpo/experiment/tracker"
	"gonum.org/v1/gonum/floats"
)

const margin = 50.0

var (
	background = color.White
	axisColour = color.Black
	lineColour = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Point is a point of a learning curve
type Point struct {
	Episode, MeanReward float64
}

// Curve returns the learning curve of a training log, the mean reward
// of each batch against the number of episodes. Rows missing either
// value are skipped.
func Curve(columns map[string][]float64) ([]Point, error) {
	episodes, ok := columns[tracker.EpisodeKey]
	if !ok {
		return nil, fmt.Errorf("curve: log has no %v column",
			tracker.EpisodeKey)
	}
	rewards, ok := columns[tracker.MeanRewardKey]
	if !ok {
		return nil, fmt.Errorf("curve: log has no %v column",
			tracker.MeanRewardKey)
	}

	var points []Point
	for i := range episodes {
		if math.IsNaN(episodes[i]) || math.IsNaN(rewards[i]) {
			continue
		}
		points = append(points, Point{episodes[i], rewards[i]})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("curve: log has no complete rows")
	}
	return points, nil
}

// bounds returns the range of values, widened if it is empty
func bounds(values []float64) (lo, hi float64) {
	lo, hi = floats.Min(values), floats.Max(values)
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	return lo, hi
}

// LearningCurve draws the learning curve of the training log at
// csvPath to a width × height PNG at pngPath
func LearningCurve(csvPath, pngPath string, width, height int) error {
	if float64(width) <= 2*margin || float64(height) <= 2*margin {
		return fmt.Errorf("learningCurve: image of size %v × %v is too "+
			"small", width, height)
	}

	columns, err := tracker.ReadColumns(csvPath)
	if err != nil {
		return fmt.Errorf("learningCurve: %v", err)
	}
	points, err := Curve(columns)
	if err != nil {
		return fmt.Errorf("learningCurve: %v", err)
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.Episode, p.MeanReward
	}
	xLo, xHi := bounds(xs)
	yLo, yHi := bounds(ys)

	w, h := float64(width), float64(height)
	toPixel := func(x, y float64) (float64, float64) {
		px := margin + (x-xLo)/(xHi-xLo)*(w-2*margin)
		py := h - margin - (y-yLo)/(yHi-yLo)*(h-2*margin)
		return px, py
	}

	dc := gg.NewContext(width, height)
	dc.SetColor(background)
	dc.Clear()

	// Axes
	dc.SetColor(axisColour)
	dc.SetLineWidth(1.0)
	dc.DrawLine(margin, h-margin, w-margin, h-margin)
	dc.DrawLine(margin, margin, margin, h-margin)
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", xLo), margin, h-margin+15,
		0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.0f", xHi), w-margin, h-margin+15,
		1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", yLo), margin-5, h-margin,
		1, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("%.1f", yHi), margin-5, margin, 1, 0.5)
	dc.DrawStringAnchored("Episode", w/2, h-margin/3, 0.5, 0.5)
	dc.DrawStringAnchored("Mean Reward", w/2, margin/2, 0.5, 0.5)

	// Curve
	dc.ClearPath()
	dc.SetColor(lineColour)
	dc.SetLineWidth(2.0)
	for _, p := range points {
		dc.LineTo(toPixel(p.Episode, p.MeanReward))
	}
	dc.Stroke()

	if err := dc.SavePNG(pngPath); err != nil {
		return fmt.Errorf("learningCurve: could not save image: %v", err)
	}
	return nil
}
