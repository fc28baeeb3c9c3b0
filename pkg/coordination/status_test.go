package coordination

import "testing"

func TestStatusHas(t *testing.T) {
	s := StatusStored | StatusPublished
	if !s.Has(StatusStored) {
		t.Fatal("expected Has(StatusStored) to be true")
	}
	if s.Has(StatusCompleted) {
		t.Fatal("expected Has(StatusCompleted) to be false")
	}
	if !s.Has(StatusStored | StatusPublished) {
		t.Fatal("expected Has of both set bits to be true")
	}
}

func TestStatusAny(t *testing.T) {
	s := StatusStored
	if !s.Any(StatusStored | StatusFailed) {
		t.Fatal("expected Any to be true when one of the bits matches")
	}
	if s.Any(StatusFailed | StatusProcessed) {
		t.Fatal("expected Any to be false when no bits match")
	}
}

func TestFailureReasonString(t *testing.T) {
	cases := map[FailureReason]string{
		FailureReasonUnspecified:     "Unspecified",
		FailureReasonValidationError: "ValidationError",
		FailureReasonTransientError: "TransientError",
		FailureReasonTransportError: "TransportError",
		FailureReasonUnknown:         "Unknown",
	}
	for reason, want := range cases {
		if got := reason.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", reason, got, want)
		}
	}
}
