package service_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/visual-health-insight/internal/source"
	"github.com/visual-health-insight/internal/source/sourcetest"
	"github.com/visual-health-insight/internal/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(v float64) *float64 { return &v }

// newStore builds a store from the shared fixture after applying edit.
func newStore(t *testing.T, edit func(raw *source.RawDatasets)) *store.Store {
	t.Helper()
	raw := sourcetest.Raw()
	if edit != nil {
		edit(raw)
	}
	s, err := store.New(raw, quietLogger())
	require.NoError(t, err)
	return s
}
