package drive

// Driver is the PWM capability the executor writes to. Pins are the
// driver's channel identifiers.
type Driver interface {
	SetDuty(pin, duty int) error
	Duty(pin int) (int, error)
}

// Duty is one pin/value pair of a batch write.
type Duty struct {
	Pin   int
	Value int
}

// BatchDriver is implemented by drivers that can apply several duty values
// as a single transaction. The executor prefers it so that all four outputs
// of a target change together.
type BatchDriver interface {
	Driver
	SetDuties(duties []Duty) error
}

// Guard vets a motion before it reaches the actuators.
type Guard interface {
	Check(m Motion) error
}
