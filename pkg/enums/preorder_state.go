package enums

import "fmt"

// PreorderState tracks the authorization held against a future release.
type PreorderState string

const (
	PreorderStateInProgress              PreorderState = "in_progress"
	PreorderStateAuthorizationSuccessful PreorderState = "authorization_successful"
	PreorderStateAuthorizationFailed     PreorderState = "authorization_failed"
)

var validPreorderStates = []PreorderState{
	PreorderStateInProgress,
	PreorderStateAuthorizationSuccessful,
	PreorderStateAuthorizationFailed,
}

func (p PreorderState) String() string {
	return string(p)
}

func (p PreorderState) IsValid() bool {
	for _, candidate := range validPreorderStates {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePreorderState(value string) (PreorderState, error) {
	for _, candidate := range validPreorderStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid preorder state %q", value)
}
