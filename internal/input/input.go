// Package input tracks discrete key presses per tick.
package input

// Key identifies a key by the character it produces.
type Key rune

// ButtonInput keeps pressed keys and keys pressed during the current tick.
// It is owned by the game loop goroutine.
type ButtonInput struct {
	pressed     map[Key]bool
	justPressed map[Key]bool
}

// NewButtonInput creates empty input state.
func NewButtonInput() *ButtonInput {
	return &ButtonInput{
		pressed:     make(map[Key]bool),
		justPressed: make(map[Key]bool),
	}
}

// Press records a key going down. Holding a key does not repeat JustPressed.
func (b *ButtonInput) Press(k Key) {
	if !b.pressed[k] {
		b.justPressed[k] = true
	}
	b.pressed[k] = true
}

// Release records a key going up.
func (b *ButtonInput) Release(k Key) {
	delete(b.pressed, k)
}

// Tap records a press immediately followed by a release, as terminals report keys.
func (b *ButtonInput) Tap(k Key) {
	b.Press(k)
	b.Release(k)
}

// Pressed reports whether k is currently held.
func (b *ButtonInput) Pressed(k Key) bool { return b.pressed[k] }

// JustPressed reports whether k went down during this tick.
func (b *ButtonInput) JustPressed(k Key) bool { return b.justPressed[k] }

// Clear forgets this tick's presses.
func (b *ButtonInput) Clear() {
	for k := range b.justPressed {
		delete(b.justPressed, k)
	}
}
