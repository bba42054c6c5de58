package player

import "math"

// Speed is bounded to [1/32, 32]x and always a power of two, so it is kept
// as a base-2 exponent.
const (
	minSpeedExp = -5
	maxSpeedExp = 5
)

const (
	Forward = 1
	Reverse = -1
)

// Clock maps elapsed wall time onto recording time. All times are in
// microseconds. Clock is not safe for concurrent use; Engine guards it.
type Clock struct {
	lastWall int64
	lastRec  int64
	speedExp int
	dir      int64
	// residual is the sub-microsecond part of recording time not yet
	// applied to lastRec.
	residual float64
}

func NewClock() *Clock {
	return &Clock{dir: Forward}
}

// Advance moves the clock to wallNow and returns the new recording time:
// last + direction * speed * (wallNow - lastWall).
func (c *Clock) Advance(wallNow int64) int64 {
	elapsed := wallNow - c.lastWall
	delta := float64(c.dir)*c.Speed()*float64(elapsed) + c.residual
	whole := math.Trunc(delta)
	c.residual = delta - whole
	c.lastRec += int64(whole)
	c.lastWall = wallNow
	return c.lastRec
}

// Anchor pins the wall-clock reference to wallNow without moving the
// recording time, so time spent stopped or paused is not replayed.
func (c *Clock) Anchor(wallNow int64) {
	c.lastWall = wallNow
}

// Set places the clock at recording time rec, anchored at wallNow.
func (c *Clock) Set(wallNow, rec int64) {
	c.lastWall = wallNow
	c.lastRec = rec
	c.residual = 0
}

func (c *Clock) Position() int64 { return c.lastRec }

func (c *Clock) Speed() float64 {
	return math.Ldexp(1, c.speedExp)
}

// SpeedUp doubles the speed, saturating at 32x.
func (c *Clock) SpeedUp() {
	if c.speedExp < maxSpeedExp {
		c.speedExp++
	}
}

// SpeedDown halves the speed, saturating at 1/32x.
func (c *Clock) SpeedDown() {
	if c.speedExp > minSpeedExp {
		c.speedExp--
	}
}

func (c *Clock) ResetSpeed() {
	c.speedExp = 0
}

// SetDirection takes effect on the next Advance. No smoothing is applied.
func (c *Clock) SetDirection(reverse bool) {
	if reverse {
		c.dir = Reverse
	} else {
		c.dir = Forward
	}
}

func (c *Clock) Reverse() bool { return c.dir == Reverse }
