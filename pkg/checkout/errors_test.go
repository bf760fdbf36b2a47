package checkout

import "testing"

func TestNewItemErrorUsesDefaultMessage(t *testing.T) {
	err := NewItemError(ErrSoldOut)
	if err.Message != "You have chosen a product that is currently sold out." {
		t.Fatalf("unexpected message %q", err.Message)
	}
	if err.Error() != "sold_out: You have chosen a product that is currently sold out." {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestUnknownCodeFallsBackToGenericMessage(t *testing.T) {
	if got := ErrorCode("mystery").Message(); got != "Sorry, something went wrong." {
		t.Fatalf("unexpected fallback %q", got)
	}
}

func TestNewItemErrorf(t *testing.T) {
	err := NewItemErrorf(ErrContributionTooLow, "The amount must be at least %s.", "$5.00")
	if err.Message != "The amount must be at least $5.00." {
		t.Fatalf("unexpected message %q", err.Message)
	}
}

func TestIsProcessorFailure(t *testing.T) {
	if !NewItemError(ErrCardDeclined).IsProcessorFailure() {
		t.Fatal("card declined is a processor failure")
	}
	if NewItemError(ErrSoldOut).IsProcessorFailure() {
		t.Fatal("sold out is a validation failure")
	}
	var nilErr *ItemError
	if nilErr.IsProcessorFailure() {
		t.Fatal("nil is not a failure")
	}
}
