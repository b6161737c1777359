package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContextWithoutLogger(t *testing.T) {
	l := FromContext(t.Context())
	if l == nil {
		t.Fatal("FromContext() = nil, want disabled logger")
	}
	if l.GetLevel() != zerolog.Disabled {
		t.Errorf("FromContext().GetLevel() = %v, want %v", l.GetLevel(), zerolog.Disabled)
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	var b bytes.Buffer
	l := zerolog.New(&b)

	ctx := WithContext(t.Context(), &l)
	FromContext(ctx).Info().Msg("hello")

	if got := b.String(); !strings.Contains(got, "hello") {
		t.Errorf("FromContext() log output = %q, want it to contain %q", got, "hello")
	}
}
