package detector

// State is the lifecycle position of a Controller.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
	CleanedUp
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case CleanedUp:
		return "cleaned-up"
	}
	return "invalid"
}
