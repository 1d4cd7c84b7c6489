// Package terminal draws the simulation in a tcell screen and turns key
// presses into manual robot commands.
package terminal

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"

	"tiltbot/internal/sim"
)

const (
	gridSpacing   = 50.0
	vectorScale   = 5.0
	vectorMinimum = 0.5
	helpText      = "WASD/arrows drive | space stop | tilt controller via /command | q/Esc quit"
)

var (
	styleDefault = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite)
	styleBorder  = styleDefault.Foreground(tcell.ColorDarkGray)
	styleGrid    = styleDefault.Foreground(tcell.NewRGBColor(40, 40, 40))
	styleHUD     = styleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleInfo    = styleDefault.Foreground(tcell.ColorGray)
	styleHelp    = styleDefault.Foreground(tcell.NewRGBColor(150, 150, 150))
	styleVector  = styleDefault.Foreground(tcell.ColorYellow)
	styleArrow   = styleDefault.Foreground(tcell.ColorWhite).Bold(true)
)

var indicators = map[sim.Command]struct {
	r      rune
	dx, dy int
}{
	sim.Forward:  {'▲', 0, -1},
	sim.Backward: {'▼', 0, 1},
	sim.Left:     {'◀', -1, 0},
	sim.Right:    {'▶', 1, 0},
}

// Renderer is a sim.Sink drawing each frame onto a tcell screen.
type Renderer struct {
	screen tcell.Screen
	addr   string
}

// NewRenderer draws onto an initialized screen. addr is shown in the HUD.
func NewRenderer(screen tcell.Screen, addr string) *Renderer {
	return &Renderer{screen: screen, addr: addr}
}

// viewport maps arena coordinates onto the screen cells between the HUD line
// and the help line.
type viewport struct {
	left, top, width, height int
	arena                    sim.Arena
}

func (v viewport) cell(p sim.Vec) (int, int) {
	x := v.left + int(math.Round(p.X/v.arena.Width*float64(v.width-1)))
	y := v.top + int(math.Round(p.Y/v.arena.Height*float64(v.height-1)))
	return x, y
}

func (v viewport) inside(x, y int) bool {
	return x >= v.left && x < v.left+v.width && y >= v.top && y < v.top+v.height
}

// Render draws the frame and flushes the screen.
func (r *Renderer) Render(f sim.Frame) {
	w, h := r.screen.Size()
	r.screen.Fill(' ', styleDefault)
	if w < 10 || h < 8 || f.Arena.Width <= 0 || f.Arena.Height <= 0 {
		drawText(r.screen, 0, 0, "terminal too small", styleHUD)
		r.screen.Show()
		return
	}

	vp := viewport{left: 1, top: 3, width: w - 2, height: h - 5, arena: f.Arena}
	r.drawBorder(vp)
	r.drawGrid(vp)
	r.drawTrail(vp, f.Trail)
	r.drawRobot(vp, f)
	r.drawHUD(w, h, f)
	r.screen.Show()
}

func (r *Renderer) drawBorder(vp viewport) {
	left, right := vp.left-1, vp.left+vp.width
	top, bottom := vp.top-1, vp.top+vp.height
	for x := left + 1; x < right; x++ {
		r.screen.SetContent(x, top, tcell.RuneHLine, nil, styleBorder)
		r.screen.SetContent(x, bottom, tcell.RuneHLine, nil, styleBorder)
	}
	for y := top + 1; y < bottom; y++ {
		r.screen.SetContent(left, y, tcell.RuneVLine, nil, styleBorder)
		r.screen.SetContent(right, y, tcell.RuneVLine, nil, styleBorder)
	}
	r.screen.SetContent(left, top, tcell.RuneULCorner, nil, styleBorder)
	r.screen.SetContent(right, top, tcell.RuneURCorner, nil, styleBorder)
	r.screen.SetContent(left, bottom, tcell.RuneLLCorner, nil, styleBorder)
	r.screen.SetContent(right, bottom, tcell.RuneLRCorner, nil, styleBorder)
}

func (r *Renderer) drawGrid(vp viewport) {
	for gx := gridSpacing; gx < vp.arena.Width; gx += gridSpacing {
		for gy := gridSpacing; gy < vp.arena.Height; gy += gridSpacing {
			x, y := vp.cell(sim.Vec{X: gx, Y: gy})
			r.screen.SetContent(x, y, '.', nil, styleGrid)
		}
	}
}

func (r *Renderer) drawTrail(vp viewport, trail []sim.Vec) {
	for i, p := range trail {
		alpha := float64(i+1) / float64(len(trail))
		glyph := '·'
		if alpha > 0.6 {
			glyph = '•'
		}
		style := styleDefault.Foreground(tcell.NewRGBColor(0, int32(40+160*alpha), 50))
		x, y := vp.cell(p)
		r.screen.SetContent(x, y, glyph, nil, style)
	}
}

func (r *Renderer) drawRobot(vp viewport, f sim.Frame) {
	x, y := vp.cell(f.Position)

	if f.Speed() > vectorMinimum {
		tip := f.Position.Add(f.Velocity.Scale(vectorScale))
		tx, ty := vp.cell(tip)
		steps := max(abs(tx-x), abs(ty-y))
		for i := 1; i <= steps; i++ {
			px := x + (tx-x)*i/steps
			py := y + (ty-y)*i/steps
			if vp.inside(px, py) {
				r.screen.SetContent(px, py, '*', nil, styleVector)
			}
		}
	}

	if ind, ok := indicators[f.Command]; ok {
		ix, iy := x+2*ind.dx, y+ind.dy
		if ind.dy == 0 {
			ix = x + 3*ind.dx
		}
		if vp.inside(ix, iy) {
			r.screen.SetContent(ix, iy, ind.r, nil, styleArrow)
		}
	}

	ratio := f.SpeedRatio()
	body := styleDefault.Foreground(tcell.NewRGBColor(int32(ratio*255), int32((1-ratio)*255), 50))
	for dx := -1; dx <= 1; dx++ {
		if vp.inside(x+dx, y) {
			r.screen.SetContent(x+dx, y, '█', nil, body)
		}
	}
}

func (r *Renderer) drawHUD(w, h int, f sim.Frame) {
	drawText(r.screen, 1, 0, fmt.Sprintf("Command: %s (%s)", f.Command, f.Command.Name()), styleHUD)
	drawText(r.screen, 1, 1, fmt.Sprintf("Position: (%d, %d)  Velocity: (%.1f, %.1f)  Speed: %.1f",
		int(f.Position.X), int(f.Position.Y), f.Velocity.X, f.Velocity.Y, f.Speed()), styleInfo)
	if r.addr != "" {
		server := "Server: " + r.addr
		drawText(r.screen, w-len(server)-1, 0, server, styleInfo)
	}
	drawText(r.screen, 1, h-1, helpText, styleHelp)
}

func drawText(s tcell.Screen, x, y int, text string, style tcell.Style) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
