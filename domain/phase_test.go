package domain_test

import (
	"errors"
	"testing"

	"github.com/dannyz30w/wavelength-games/domain"
	"github.com/stretchr/testify/assert"
)

func TestParsePhase(t *testing.T) {
	testCases := []struct {
		in   string
		want domain.Phase
	}{
		{"clue_giving", domain.PhaseClueGiving},
		{"guessing", domain.PhaseGuessing},
		{"reveal", domain.PhaseReveal},
		{"complete", domain.PhaseComplete},
		{"predicting", domain.PhasePredicting},
		{"dancing", domain.PhaseUnknown},
		{"", domain.PhaseUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.ParsePhase(tc.in))
		})
	}
}

func TestPhaseOrdering(t *testing.T) {
	assert.True(t, domain.PhaseGuessing.After(domain.PhaseClueGiving))
	assert.True(t, domain.PhaseComplete.After(domain.PhaseReveal))
	assert.False(t, domain.PhaseClueGiving.After(domain.PhaseClueGiving))
	assert.False(t, domain.PhaseUnknown.After(domain.PhaseWaiting))

	assert.True(t, domain.PhaseReveal.Active())
	assert.False(t, domain.PhaseComplete.Active())
	assert.False(t, domain.PhaseWaiting.Active())
}

func TestErrorKinds(t *testing.T) {
	assert.ErrorIs(t, domain.ErrWrongPassword, domain.ErrAuthorization)
	assert.ErrorIs(t, domain.ErrRoomFull, domain.ErrCapacity)
	assert.ErrorIs(t, domain.ErrRoomNotFound, domain.ErrNotFound)
	assert.NotErrorIs(t, domain.ErrRoomNotFound, domain.ErrAuthorization)
	assert.Equal(t, "wrong-password", domain.ErrWrongPassword.Error())

	var de *domain.Error
	wrapped := errors.Join(errors.New("context"), domain.ErrEmptyClue)
	assert.True(t, errors.As(wrapped, &de))
	assert.Equal(t, domain.ErrValidation, de.Kind())
}
