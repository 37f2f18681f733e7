package pwm

import "sync"

// MemoryCall is a single call recorded by MemoryBackend.
type MemoryCall struct {
	Method string
	Pin    int
	Value  int
}

// MemoryBackend is a Backend that only remembers what it was told. It is used
// for dry runs on machines without PWM hardware.
type MemoryBackend struct {
	mu     sync.Mutex
	calls  []MemoryCall
	duty   map[int]int
	freq   map[int]int
	rng    map[int]int
	closed bool

	// FailOn makes the named method return ErrMemoryFailure.
	FailOn string
}

var _ Backend = (*MemoryBackend)(nil)

// ErrMemoryFailure is returned by MemoryBackend when FailOn matches.
var ErrMemoryFailure = memoryError("simulated hardware failure")

type memoryError string

func (e memoryError) Error() string { return string(e) }

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		duty: make(map[int]int),
		freq: make(map[int]int),
		rng:  make(map[int]int),
	}
}

func (m *MemoryBackend) record(method string, pin, value int) error {
	m.calls = append(m.calls, MemoryCall{Method: method, Pin: pin, Value: value})
	if m.FailOn == method {
		return ErrMemoryFailure
	}
	return nil
}

func (m *MemoryBackend) SetRange(pin, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("SetRange", pin, max); err != nil {
		return err
	}
	m.rng[pin] = max
	return nil
}

func (m *MemoryBackend) SetFrequency(pin, hz int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("SetFrequency", pin, hz); err != nil {
		return err
	}
	m.freq[pin] = hz
	return nil
}

func (m *MemoryBackend) SetDutyCycle(pin, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("SetDutyCycle", pin, value); err != nil {
		return err
	}
	m.duty[pin] = value
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Calls returns a copy of every call made so far.
func (m *MemoryBackend) Calls() []MemoryCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]MemoryCall(nil), m.calls...)
}

// CallCount counts the calls made to the named method.
func (m *MemoryBackend) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// DutyCycle returns the last duty cycle set on pin.
func (m *MemoryBackend) DutyCycle(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.duty[pin]
}

// Frequency returns the last frequency set on pin.
func (m *MemoryBackend) Frequency(pin int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.freq[pin]
}

// Closed reports whether Close was called.
func (m *MemoryBackend) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
