package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, logrus.DebugLevel, parseLogLevel("debug"))
	require.Equal(t, logrus.WarnLevel, parseLogLevel("WARN"))
	require.Equal(t, logrus.InfoLevel, parseLogLevel("not-a-level"))
}
