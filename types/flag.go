package types

// Flag is a set-once boolean signal that is safe to share across a concurrency
// boundary. Once set it stays set.
type Flag interface {
	Set()
	IsSet() bool
}

// Flags groups the four signals a controller exposes to its owner.
type Flags struct {
	// Stop is the terminal signal; no iteration starts after it is observed.
	Stop Flag

	// SoftStop asks the loop to exit at the next iteration boundary that allows it.
	SoftStop Flag

	// StartupComplete is set once setup finished and before the first iteration.
	StartupComplete Flag

	// TeardownComplete is set once teardown finished, whether or not it failed.
	TeardownComplete Flag
}

// Complete reports whether every flag is non-nil.
func (f Flags) Complete() bool {
	return f.Stop != nil && f.SoftStop != nil && f.StartupComplete != nil && f.TeardownComplete != nil
}
