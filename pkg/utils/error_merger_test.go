package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeErrorChans(t *testing.T) {
	a := make(chan error, 1)
	b := make(chan error, 2)
	a <- errors.New("a")
	b <- errors.New("b1")
	b <- errors.New("b2")
	close(a)
	close(b)

	var got []string
	for err := range MergeErrorChans(a, b) {
		got = append(got, err.Error())
	}
	assert.ElementsMatch(t, []string{"a", "b1", "b2"}, got)
}

func TestMergeErrorChansNoInputs(t *testing.T) {
	_, open := <-MergeErrorChans()
	assert.False(t, open)
}
